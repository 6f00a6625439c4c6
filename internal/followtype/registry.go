package followtype

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/d60-Lab/followgraph/internal/cache"
	"github.com/d60-Lab/followgraph/internal/event"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/service"
	"github.com/d60-Lab/followgraph/pkg/logger"
)

var (
	ErrDuplicateType = errors.New("follow type already registered")
	ErrUnknownKind   = errors.New("unknown entity kind")
)

// Registry 关注类型注册表，启动时构建并注入各组件
type Registry struct {
	cache   *cache.FollowCache
	bus     *event.Bus
	remover service.EntityRemover

	mu      sync.RWMutex
	modules map[model.FollowType]Module
	byKind  map[string]model.FollowType
	order   []model.FollowType
}

func NewRegistry(fc *cache.FollowCache, bus *event.Bus, remover service.EntityRemover) *Registry {
	return &Registry{
		cache:   fc,
		bus:     bus,
		remover: remover,
		modules: make(map[model.FollowType]Module),
		byKind:  make(map[string]model.FollowType),
	}
}

// Register 注册缓存分组，并把 handlers 订阅到该类型的 started/stopped 事件
func (r *Registry) Register(m Module, handlers ...event.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Type]; ok {
		return errors.WithMessage(ErrDuplicateType, m.Type.String())
	}
	if m.LeaderKind != "" {
		if other, ok := r.byKind[m.LeaderKind]; ok {
			return errors.WithMessagef(ErrDuplicateType, "kind %q owned by %s", m.LeaderKind, other)
		}
		r.byKind[m.LeaderKind] = m.Type
	}
	r.modules[m.Type] = m
	r.order = append(r.order, m.Type)

	if r.cache != nil {
		r.cache.RegisterType(m.Type)
	}
	if r.bus != nil {
		for _, h := range handlers {
			r.bus.Subscribe(event.FollowStarted, m.Type, h)
			r.bus.Subscribe(event.FollowStopped, m.Type, h)
		}
	}
	logger.Debug("follow type registered", zap.String("type", m.Type.String()), zap.String("kind", m.LeaderKind))
	return nil
}

func (r *Registry) Lookup(ft model.FollowType) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[ft]
	return m, ok
}

// LookupKind finds the module whose leaders are entities of kind.
func (r *Registry) LookupKind(kind string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ft, ok := r.byKind[kind]
	if !ok {
		return Module{}, false
	}
	return r.modules[ft], true
}

// Modules 按注册顺序返回
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(r.order))
	for _, ft := range r.order {
		out = append(out, r.modules[ft])
	}
	return out
}

// Hooks 把宿主删除通知路由到指定 remover。HTTP 入口用注册表自带的 remover（可能是异步队列），
// Kafka 消费者必须用同步的 FollowService，级联失败时才能不提交 offset
type Hooks struct {
	registry *Registry
	remover  service.EntityRemover
}

func (r *Registry) HooksWith(remover service.EntityRemover) Hooks {
	return Hooks{registry: r, remover: remover}
}

// UserRemoved 用户删除：用户类型里两种角色都删，其他类型里只删其作为 follower 的关系
func (r *Registry) UserRemoved(ctx context.Context, userID int64) (int, error) {
	return r.HooksWith(r.remover).UserRemoved(ctx, userID)
}

// EntityRemoved dispatches a host deletion notification to the owning module.
func (r *Registry) EntityRemoved(ctx context.Context, kind string, id int64) (int, error) {
	return r.HooksWith(r.remover).EntityRemoved(ctx, kind, id)
}

func (h Hooks) UserRemoved(ctx context.Context, userID int64) (int, error) {
	total := 0
	var errs []error
	for _, m := range h.registry.Modules() {
		role := model.RoleFollower
		if m.Type == model.TypeUsers {
			role = model.RoleBoth
		}
		n, err := h.remover.RemoveEntity(ctx, userID, m.Type, role)
		if err != nil {
			errs = append(errs, errors.WithMessage(err, m.Type.String()))
			continue
		}
		total += n
	}
	return total, stderrors.Join(errs...)
}

func (h Hooks) EntityRemoved(ctx context.Context, kind string, id int64) (int, error) {
	if kind == Users().LeaderKind {
		return h.UserRemoved(ctx, id)
	}
	m, ok := h.registry.LookupKind(kind)
	if !ok {
		return 0, errors.WithMessagef(ErrUnknownKind, "%q", kind)
	}
	return h.remover.RemoveEntity(ctx, id, m.Type, model.RoleLeader)
}
