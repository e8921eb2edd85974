// Package triggers holds the reconciliation engine: a set of handlers fired
// by document writes that keep the derived views (slot day buckets,
// attendance, booking mirrors, booking stats, public org info) convergent
// with the authoritative documents. Handlers receive a before/after snapshot
// of exactly one document, are invoked at least once and possibly
// concurrently, and must therefore be idempotent; cross-document consistency
// is eventual.
package triggers

import (
	"context"
	"strings"

	log "rinkserver/cloudlog"
	"rinkserver/storage"
)

// Param names extracted from trigger patterns.
const (
	paramOrg       = "org"
	paramSlot      = "slot"
	paramCustomer  = "customer"
	paramSecretKey = "secretKey"
)

// Trigger patterns. Segments wrapped in braces capture path params.
const (
	SlotPattern         = "organizations/{org}/slots/{slot}"
	CustomerPattern     = "organizations/{org}/customers/{customer}"
	BookedSlotPattern   = "organizations/{org}/bookings/{secretKey}/bookedSlots/{slot}"
	AttendancePattern   = "organizations/{org}/attendance/{slot}"
	SecretsPattern      = "secrets/{org}"
	OrganizationPattern = "organizations/{org}"
)

// DocumentChange is the before/after snapshot delivered for a single
// document write. Before is nil on creation, After is nil on deletion.
type DocumentChange struct {
	Path   string
	Params map[string]string
	Before storage.Doc
	After  storage.Doc
}

// Created reports whether the change is a document creation.
func (c *DocumentChange) Created() bool {
	return c.Before == nil && c.After != nil
}

// Deleted reports whether the change is a document deletion.
func (c *DocumentChange) Deleted() bool {
	return c.After == nil
}

// Handler reacts to one document change. Returning an error signals the
// platform to redeliver; handlers must tolerate the replay.
type Handler func(ctx context.Context, change *DocumentChange) error

type route struct {
	pattern  string
	segments []string
	handler  Handler
}

// Registry maps document path patterns to handlers and dispatches incoming
// changes to every handler whose pattern matches.
type Registry struct {
	routes []route
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a handler for a pattern. Multiple handlers may share one
// pattern; they run in registration order.
func (r *Registry) Register(pattern string, handler Handler) {
	r.routes = append(r.routes, route{
		pattern:  pattern,
		segments: strings.Split(pattern, "/"),
		handler:  handler,
	})
}

// Dispatch runs every handler matching path. All matching handlers run even
// if an earlier one fails, so a redelivery retries the group as a whole; the
// first error is returned.
func (r *Registry) Dispatch(ctx context.Context, path string, before, after storage.Doc) error {
	parts := strings.Split(path, "/")
	var firstErr error
	matched := false
	for _, rt := range r.routes {
		params, ok := match(rt.segments, parts)
		if !ok {
			continue
		}
		matched = true
		change := &DocumentChange{
			Path:   path,
			Params: params,
			Before: before,
			After:  after,
		}
		if err := rt.handler(ctx, change); err != nil {
			log.Printf("handler for %s failed on %s: %v", rt.pattern, path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if !matched {
		log.Printf("no handler registered for document path %s", path)
	}
	return firstErr
}

func match(pattern, parts []string) (map[string]string, bool) {
	if len(pattern) != len(parts) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if parts[i] == "" {
				return nil, false
			}
			params[seg[1:len(seg)-1]] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// RegisterAll wires the full reconciliation engine onto reg against store.
func RegisterAll(reg *Registry, store storage.Store) {
	slots := NewSlotReconciler(store)
	customers := NewCustomerPropagator(store)
	attendance := NewAttendanceSynchronizer(store)
	orginfo := NewOrgRegistrar(store)
	stats := NewStatsAggregator(store)

	reg.Register(SlotPattern, slots.Handle)
	reg.Register(CustomerPattern, customers.Handle)
	reg.Register(BookedSlotPattern, attendance.HandleBookedSlot)
	reg.Register(AttendancePattern, attendance.HandleAttendance)
	reg.Register(SecretsPattern, orginfo.HandleSecrets)
	reg.Register(OrganizationPattern, orginfo.HandleOrganization)
	reg.Register(BookedSlotPattern, stats.Handle)
}
