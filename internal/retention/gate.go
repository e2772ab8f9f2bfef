package retention

import (
	"context"
	"fmt"

	"custodian/pkg/domain"
	"custodian/pkg/requestcontext"
)

// Verdict is one regulation handler's answer to "may this record be
// deleted". A denial is not an error; it is a normal skip outcome that the
// sweep records in its summary.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Handler decides deletion admissibility for one regulatory regime.
type Handler interface {
	Regulation() domain.Regulation
	CanDelete(ctx context.Context, tracking *TrackingRecord) (Verdict, error)
}

// ComplianceGate consults the handler of every regulation named by the
// record's policy snapshot. Verdicts are ANDed: deletion proceeds only if
// every applicable handler allows it. Regulations without a registered
// handler allow by default.
type ComplianceGate struct {
	handlers map[domain.Regulation]Handler
}

// NewComplianceGate indexes the given handlers.
func NewComplianceGate(handlers ...Handler) *ComplianceGate {
	indexed := make(map[domain.Regulation]Handler, len(handlers))
	for _, h := range handlers {
		indexed[h.Regulation()] = h
	}
	return &ComplianceGate{handlers: indexed}
}

// CanDelete evaluates every applicable regulation and updates the tracking
// record's compliance flags with the verdicts.
func (g *ComplianceGate) CanDelete(ctx context.Context, tracking *TrackingRecord) (Verdict, error) {
	if tracking.ComplianceFlags == nil {
		tracking.ComplianceFlags = make(map[string]bool, len(tracking.Policy.Regulations))
	}
	for _, regulation := range tracking.Policy.Regulations {
		handler, ok := g.handlers[regulation]
		if !ok {
			tracking.ComplianceFlags[regulation.String()] = true
			continue
		}
		verdict, err := handler.CanDelete(ctx, tracking)
		if err != nil {
			return Verdict{}, fmt.Errorf("evaluate %s handler: %w", regulation, err)
		}
		tracking.ComplianceFlags[regulation.String()] = verdict.Allowed
		if !verdict.Allowed {
			return Verdict{Allowed: false, Reason: fmt.Sprintf("%s: %s", regulation, verdict.Reason)}, nil
		}
	}
	return Verdict{Allowed: true}, nil
}

// GDPRHandler implements the GDPR deletion rules:
//
//   - an open erasure request allows (demands) deletion,
//   - consent that has lapsed on its own allows deletion,
//   - otherwise a consent-gated policy requires an active consent record
//     for the category before its data may be destroyed.
type GDPRHandler struct {
	consents ConsentStore
	erasure  ErasureRegistry
}

// NewGDPRHandler creates the GDPR compliance handler.
func NewGDPRHandler(consents ConsentStore, erasure ErasureRegistry) *GDPRHandler {
	return &GDPRHandler{consents: consents, erasure: erasure}
}

func (h *GDPRHandler) Regulation() domain.Regulation { return domain.RegulationGDPR }

func (h *GDPRHandler) CanDelete(ctx context.Context, tracking *TrackingRecord) (Verdict, error) {
	open, err := h.erasure.HasOpenRequest(ctx, tracking.OwnerID)
	if err != nil {
		return Verdict{}, fmt.Errorf("check erasure registry: %w", err)
	}
	if open {
		return Verdict{Allowed: true, Reason: "open erasure request"}, nil
	}

	if !tracking.Policy.RequireConsent {
		return Verdict{Allowed: true}, nil
	}

	records, err := h.consents.ListByOwner(ctx, tracking.OwnerID, tracking.Category)
	if err != nil {
		return Verdict{}, fmt.Errorf("list consent records: %w", err)
	}
	now := requestcontext.Now(ctx)
	granted := false
	for _, record := range records {
		if record.IsActive(now) {
			return Verdict{Allowed: true, Reason: "active consent on file"}, nil
		}
		if !record.ExpiresAt.IsZero() && !record.ExpiresAt.After(now) {
			granted = true
		}
	}
	if granted {
		// Consent lapsed on its own; retaining the data would exceed the
		// basis the owner originally granted.
		return Verdict{Allowed: true, Reason: "consent expired"}, nil
	}
	return Verdict{Allowed: false, Reason: "no consent record for category"}, nil
}

// DefaultAllowHandler allows deletion unconditionally for regimes without
// stricter rules.
type DefaultAllowHandler struct {
	regulation domain.Regulation
}

func NewDefaultAllowHandler(regulation domain.Regulation) *DefaultAllowHandler {
	return &DefaultAllowHandler{regulation: regulation}
}

func (h *DefaultAllowHandler) Regulation() domain.Regulation { return h.regulation }

func (h *DefaultAllowHandler) CanDelete(context.Context, *TrackingRecord) (Verdict, error) {
	return Verdict{Allowed: true}, nil
}
