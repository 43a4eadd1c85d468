package projection

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"certify/internal/registry/models"
)

// Dashboard aggregates registry totals and the last ActivityFeedSize mints,
// newest first. Both halves are computed against the same observed head.
func (e *Engine) Dashboard(ctx context.Context) (*Dashboard, error) {
	return e.dashboard(ctx, e.credentials.GetCredential)
}

func (e *Engine) dashboard(ctx context.Context, getCredential credentialGetter) (dash *Dashboard, err error) {
	ctx, span := e.startSpan(ctx, "dashboard")
	defer func() { e.endSpan(ctx, span, "dashboard", err) }()
	defer e.observe("dashboard", time.Now())

	head, err := e.observeHead(ctx)
	if err != nil {
		return nil, err
	}
	dash = &Dashboard{RecentActivity: []ActivityItem{}, AsOfSequence: head}
	if head == 0 {
		return dash, nil
	}

	var (
		dir    *Directory
		total  int
		recent []ActivityItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dir, err = e.directoryAt(gctx, head)
		return err
	})
	g.Go(func() error {
		var err error
		total, recent, err = e.recentActivity(gctx, head, getCredential)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dash.TotalCredentials = total
	dash.RecentActivity = recent
	dash.TotalIssuers = len(dir.Issuers)
	dash.ActiveIssuers, dash.SuspendedIssuers, dash.DeactivatedIssuers = dir.Counts()
	return dash, nil
}

// recentActivity counts every mint up to head and resolves the newest
// ActivityFeedSize of them. Each item looks up its credential and then the
// credential's issuer; items are resolved concurrently and keep newest-first
// order.
func (e *Engine) recentActivity(ctx context.Context, head uint64, getCredential credentialGetter) (int, []ActivityItem, error) {
	total := 0
	var tail []models.Event
	q := models.EventQuery{Kinds: []models.EventKind{models.EventCertificateIssued}}
	err := e.replay(ctx, "dashboard", head, q, func(evt models.Event) {
		total++
		tail = append(tail, evt)
		if len(tail) > ActivityFeedSize {
			tail = tail[1:]
		}
	})
	if err != nil {
		return 0, nil, err
	}

	items := make([]ActivityItem, len(tail))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ActivityFeedSize)
	for i := range tail {
		evt := tail[len(tail)-1-i]
		g.Go(func() error {
			c, err := getCredential(gctx, evt.TokenID)
			if err != nil {
				return lookupError(err, "failed to load credential "+evt.TokenID.String())
			}
			issuer, err := e.reader.GetIssuer(gctx, c.IssuerAccountID)
			if err != nil {
				return lookupError(err, "failed to load issuer "+c.IssuerAccountID.String())
			}
			items[i] = ActivityItem{Sequence: evt.Sequence, Credential: c, IssuerName: issuer.Name}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	return total, items, nil
}
