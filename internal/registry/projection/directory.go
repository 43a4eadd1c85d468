package projection

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"certify/internal/registry/models"
	"certify/pkg/domain"
)

// Directory lists every issuer ever registered, in registration order, with
// its live record. An empty log yields an empty directory.
func (e *Engine) Directory(ctx context.Context) (d *Directory, err error) {
	ctx, span := e.startSpan(ctx, "directory")
	defer func() { e.endSpan(ctx, span, "directory", err) }()
	defer e.observe("directory", time.Now())

	head, err := e.observeHead(ctx)
	if err != nil {
		return nil, err
	}
	return e.directoryAt(ctx, head)
}

func (e *Engine) directoryAt(ctx context.Context, head uint64) (*Directory, error) {
	d := &Directory{Issuers: []*models.Issuer{}, AsOfSequence: head}
	if head == 0 {
		return d, nil
	}

	var accounts []domain.AccountID
	seen := make(map[domain.AccountID]struct{})
	q := models.EventQuery{Kinds: []models.EventKind{models.EventIssuerAdded}}
	err := e.replay(ctx, "directory", head, q, func(evt models.Event) {
		if _, dup := seen[evt.Account]; dup {
			return
		}
		seen[evt.Account] = struct{}{}
		accounts = append(accounts, evt.Account)
	})
	if err != nil {
		return nil, err
	}

	issuers := make([]*models.Issuer, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.directoryConcurrency)
	for i, account := range accounts {
		g.Go(func() error {
			issuer, err := e.reader.GetIssuer(gctx, account)
			if err != nil {
				return lookupError(err, "failed to load issuer "+account.String())
			}
			issuers[i] = issuer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.Issuers = issuers
	return d, nil
}

func (e *Engine) observe(view string, start time.Time) {
	e.metrics.ObserveProjection(view, time.Since(start))
}
