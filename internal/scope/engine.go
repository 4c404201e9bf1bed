package scope

import (
	"context"
	"time"

	"accessgov.org/internal/directory"
)

// Engine computes which public services one citizen may see right now.
// Visibility is the union of five candidate sets: the unrestricted public
// catalogue, open service permissions, open association permissions, open
// department permissions reached through the department's associations,
// and effective grants. The union is deduplicated; hidden services
// (Visibility false) never appear through any channel.
type Engine struct {
	store directory.Store
	now   func() time.Time
}

// NewEngine builds a visibility engine over the store. The clock is
// injectable for tests.
func NewEngine(store directory.Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now}
}

// ListServices returns the citizen's visible services after applying the
// parsed querystring filters. Services reached through a permission window
// or a grant refresh the citizen's ServiceSession as a side effect.
func (e *Engine) ListServices(ctx context.Context, citizen *directory.Citizen, filters []directory.Filter, ip string) ([]*directory.PublicService, error) {
	now := e.now().UTC()

	public, err := e.store.Services().List(ctx, directory.Query{
		Scope: directory.ScopeEverything(),
		Filters: append([]directory.Filter{
			{Field: "Restricted", Values: []string{"false"}},
			{Field: "Visibility", Values: []string{"true"}},
		}, filters...),
	})
	if err != nil {
		return nil, err
	}

	channelIDs, err := e.channelServiceIDs(ctx, citizen.ID, now)
	if err != nil {
		return nil, err
	}
	var channel []*directory.PublicService
	if len(channelIDs) > 0 {
		channel, err = e.store.Services().List(ctx, directory.Query{
			Scope:   directory.AmongIDs(channelIDs),
			Filters: append([]directory.Filter{{Field: "Visibility", Values: []string{"true"}}}, filters...),
		})
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(public)+len(channel))
	out := make([]*directory.PublicService, 0, len(public)+len(channel))
	for _, svc := range public {
		seen[svc.ID] = struct{}{}
		out = append(out, svc)
	}
	for _, svc := range channel {
		if _, ok := seen[svc.ID]; ok {
			continue
		}
		seen[svc.ID] = struct{}{}
		out = append(out, svc)
	}

	for _, svc := range channel {
		if _, err := e.store.Sessions().Upsert(ctx, citizen.ID, svc.ID, ip, now); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetService fetches one service by id under the same union. An id outside
// the citizen's visibility, hidden or simply absent, is uniformly
// ErrNotFound. A restricted service reached through a permission window or
// grant refreshes the ServiceSession.
func (e *Engine) GetService(ctx context.Context, citizen *directory.Citizen, id, ip string) (*directory.PublicService, error) {
	svc, err := e.store.Services().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !svc.Visibility {
		return nil, directory.ErrNotFound
	}
	if !svc.Restricted {
		return svc, nil
	}

	now := e.now().UTC()
	ok, err := e.coveredByChannel(ctx, citizen.ID, svc, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, directory.ErrNotFound
	}
	if _, err := e.store.Sessions().Upsert(ctx, citizen.ID, svc.ID, ip, now); err != nil {
		return nil, err
	}
	return svc, nil
}

// channelServiceIDs collects the service ids reachable through open
// permission windows and effective grants, deduplicated.
func (e *Engine) channelServiceIDs(ctx context.Context, citizenID string, now time.Time) ([]string, error) {
	perms := e.store.Permissions()

	direct, err := perms.OpenTargetIDs(ctx, directory.PermissionService, citizenID, now)
	if err != nil {
		return nil, err
	}
	assocIDs, err := perms.OpenTargetIDs(ctx, directory.PermissionAssociation, citizenID, now)
	if err != nil {
		return nil, err
	}
	deptIDs, err := perms.OpenTargetIDs(ctx, directory.PermissionDepartment, citizenID, now)
	if err != nil {
		return nil, err
	}
	granted, err := e.store.Grants().ListGrantedServiceIDs(ctx, citizenID, now)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range direct {
		add(id)
	}
	for _, id := range granted {
		add(id)
	}
	if len(assocIDs) > 0 {
		svcs, err := e.store.Services().List(ctx, directory.Query{
			Scope:   directory.ScopeEverything(),
			Filters: []directory.Filter{{Field: "Association", Values: assocIDs}},
		})
		if err != nil {
			return nil, err
		}
		for _, svc := range svcs {
			add(svc.ID)
		}
	}
	if len(deptIDs) > 0 {
		svcs, err := e.store.Services().List(ctx, directory.Query{
			Scope:   directory.ScopeEverything(),
			Filters: []directory.Filter{{Field: "Association__Department", Values: deptIDs}},
		})
		if err != nil {
			return nil, err
		}
		for _, svc := range svcs {
			add(svc.ID)
		}
	}
	return out, nil
}

// coveredByChannel answers the single-service membership question without
// materializing the whole union.
func (e *Engine) coveredByChannel(ctx context.Context, citizenID string, svc *directory.PublicService, now time.Time) (bool, error) {
	perms := e.store.Permissions()

	direct, err := perms.OpenTargetIDs(ctx, directory.PermissionService, citizenID, now)
	if err != nil {
		return false, err
	}
	if contains(direct, svc.ID) {
		return true, nil
	}
	assocIDs, err := perms.OpenTargetIDs(ctx, directory.PermissionAssociation, citizenID, now)
	if err != nil {
		return false, err
	}
	if contains(assocIDs, svc.AssociationID) {
		return true, nil
	}
	deptIDs, err := perms.OpenTargetIDs(ctx, directory.PermissionDepartment, citizenID, now)
	if err != nil {
		return false, err
	}
	if len(deptIDs) > 0 {
		assoc, err := e.store.Associations().GetByID(ctx, svc.AssociationID)
		if err != nil {
			return false, err
		}
		if contains(deptIDs, assoc.DepartmentID) {
			return true, nil
		}
	}
	granted, err := e.store.Grants().ListGrantedServiceIDs(ctx, citizenID, now)
	if err != nil {
		return false, err
	}
	return contains(granted, svc.ID), nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
