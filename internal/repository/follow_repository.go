package repository

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/followgraph/internal/model"
)

// FollowRepository 关注关系存储
type FollowRepository interface {
	// Find 返回 (leader, follower, type) 对应的关系 id，不存在时为 0
	Find(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (uint64, error)
	// Get 按主键读取，不存在时返回 nil, nil
	Get(ctx context.Context, id uint64) (*model.Follow, error)
	Create(ctx context.Context, f *model.Follow) error
	Update(ctx context.Context, f *model.Follow) error
	// Delete 按主键删除，幂等
	Delete(ctx context.Context, id uint64) (bool, error)
	ListFollowers(ctx context.Context, leaderIDs []int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error)
	ListFollowing(ctx context.Context, followerID int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error)
	CountFollowers(ctx context.Context, leaderID int64, ft model.FollowType) (int64, error)
	CountFollowing(ctx context.Context, followerID int64, ft model.FollowType) (int64, error)
	// BulkCheckStatus 一次查询返回 followerID 关注了哪些 leader（leader_id -> 关系 id）
	BulkCheckStatus(ctx context.Context, leaderIDs []int64, followerID int64, ft model.FollowType) (map[int64]uint64, error)
	// DeleteAllForEntity 删除实体在该类型下的全部关系并返回被删除的记录
	DeleteAllForEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role) ([]model.Follow, error)
	// WithinTx 在一个事务内执行 fn，关系写入和 outbox 事件一起提交或回滚
	WithinTx(ctx context.Context, fn func(follows FollowRepository, outbox OutboxRepository) error) error
}

type followRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db, now: time.Now}
}

// NewFollowRepositoryWithClock is NewFollowRepository with a fixed reference
// clock for relative date filters.
func NewFollowRepositoryWithClock(db *gorm.DB, clock func() time.Time) FollowRepository {
	return &followRepository{db: db, now: clock}
}

func (r *followRepository) WithinTx(ctx context.Context, fn func(FollowRepository, OutboxRepository) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&followRepository{db: tx, now: r.now}, &outboxRepository{db: tx, lease: DefaultOutboxLease, now: time.Now})
		return fnErr
	})
	if fnErr != nil {
		// 保留 ErrDuplicateEdge 等哨兵错误
		return fnErr
	}
	return storeErr("commit", err)
}

// AutoMigrate 建表及索引
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Follow{}, &model.OutboxEvent{})
}

func (r *followRepository) Find(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("leader_id = ? AND follower_id = ? AND follow_type = ?", leaderID, followerID, string(ft)).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, storeErr("find", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func (r *followRepository) Get(ctx context.Context, id uint64) (*model.Follow, error) {
	var f model.Follow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get", err)
	}
	return &f, nil
}

func (r *followRepository) Create(ctx context.Context, f *model.Follow) error {
	if f.DateRecorded.IsZero() {
		f.DateRecorded = r.now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEdge
		}
		return storeErr("create", err)
	}
	return nil
}

func (r *followRepository) Update(ctx context.Context, f *model.Follow) error {
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("id = ?", f.ID).
		Updates(map[string]any{
			"leader_id":     f.LeaderID,
			"follower_id":   f.FollowerID,
			"follow_type":   string(f.FollowType),
			"date_recorded": f.DateRecorded,
		}).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEdge
		}
		return storeErr("update", err)
	}
	return nil
}

func (r *followRepository) Delete(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Follow{})
	if res.Error != nil {
		return false, storeErr("delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) ListFollowers(ctx context.Context, leaderIDs []int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error) {
	ids := SanitizeIDs(leaderIDs)
	if len(ids) == 0 {
		return []int64{}, nil
	}
	tx := r.db.WithContext(ctx).Model(&model.Follow{})
	if len(ids) == 1 {
		tx = tx.Where("leader_id = ?", ids[0])
	} else {
		tx = tx.Where("leader_id IN ?", ids)
	}
	return r.pluckIDs(tx.Where("follow_type = ?", string(ft)), "follower_id", opts)
}

func (r *followRepository) ListFollowing(ctx context.Context, followerID int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND follow_type = ?", followerID, string(ft))
	return r.pluckIDs(tx, "leader_id", opts)
}

func (r *followRepository) pluckIDs(tx *gorm.DB, column string, opts model.QueryOptions) ([]int64, error) {
	tx, err := applyDateQuery(tx, opts.Date, r.now())
	if err != nil {
		return nil, err
	}
	tx = applyOrder(tx, opts)
	if opts.PerPage > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		tx = tx.Offset((page - 1) * opts.PerPage).Limit(opts.PerPage)
	}
	out := make([]int64, 0)
	if err := tx.Pluck(column, &out).Error; err != nil {
		return nil, storeErr("list", err)
	}
	return out, nil
}

var orderColumns = map[string]string{
	"":              "id",
	"id":            "id",
	"date_recorded": "date_recorded",
	"leader_id":     "leader_id",
	"follower_id":   "follower_id",
}

// applyOrder 排序字段走白名单，不拼接外部输入
func applyOrder(tx *gorm.DB, opts model.QueryOptions) *gorm.DB {
	col, ok := orderColumns[opts.OrderBy]
	if !ok {
		col = "id"
	}
	desc := strings.EqualFold(opts.Order, "DESC")
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc})
	if col != "id" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
	return tx
}

func (r *followRepository) CountFollowers(ctx context.Context, leaderID int64, ft model.FollowType) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("leader_id = ? AND follow_type = ?", leaderID, string(ft)).
		Count(&cnt).Error
	if err != nil {
		return 0, storeErr("count followers", err)
	}
	return cnt, nil
}

func (r *followRepository) CountFollowing(ctx context.Context, followerID int64, ft model.FollowType) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND follow_type = ?", followerID, string(ft)).
		Count(&cnt).Error
	if err != nil {
		return 0, storeErr("count following", err)
	}
	return cnt, nil
}

func (r *followRepository) BulkCheckStatus(ctx context.Context, leaderIDs []int64, followerID int64, ft model.FollowType) (map[int64]uint64, error) {
	ids := SanitizeIDs(leaderIDs)
	out := make(map[int64]uint64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID       uint64
		LeaderID int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Select("id", "leader_id").
		Where("follower_id = ? AND follow_type = ? AND leader_id IN ?", followerID, string(ft), ids).
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr("bulk check", err)
	}
	for _, row := range rows {
		out[row.LeaderID] = row.ID
	}
	return out, nil
}

func (r *followRepository) DeleteAllForEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role) ([]model.Follow, error) {
	var where string
	var args []any
	switch role {
	case model.RoleLeader:
		where, args = "leader_id = ? AND follow_type = ?", []any{id, string(ft)}
	case model.RoleFollower:
		where, args = "follower_id = ? AND follow_type = ?", []any{id, string(ft)}
	case model.RoleBoth:
		where, args = "(leader_id = ? OR follower_id = ?) AND follow_type = ?", []any{id, id, string(ft)}
	default:
		return nil, errors.Wrapf(ErrInvalidQuery, "role %q", role)
	}

	var removed []model.Follow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(where, args...).Order("id").Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		edgeIDs := make([]uint64, len(removed))
		for i, f := range removed {
			edgeIDs[i] = f.ID
		}
		for start := 0; start < len(edgeIDs); start += deleteChunk {
			end := min(start+deleteChunk, len(edgeIDs))
			if err := tx.Where("id IN ?", edgeIDs[start:end]).Delete(&model.Follow{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("delete all", err)
	}
	return removed, nil
}

const deleteChunk = 500

// SanitizeIDs 去掉非正数并去重，保持原有顺序；服务层预热缓存时复用
func SanitizeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
