package federation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

// QueryPaginated requests up to pages sequential pages from one source, starting
// at q.Page. It stops at the first empty page. An error after the first page keeps
// the records fetched so far: the source is still successful and Error explains the stop.
func (c *Client) QueryPaginated(ctx context.Context, id string, q query.Spec, pages int) Result {
	if pages <= 0 {
		pages = 1
	}
	if q.Page <= 0 {
		q.Page = 1
	}

	res := Result{Sources: make(map[string]aggregation.SourceResult, 1)}

	desc, fetcher, ok := c.reg.Lookup(id)
	switch {
	case !ok:
		c.observe(id, "skipped", 0, 0, 0)
		res.Sources[id] = aggregation.SourceResult{Error: domain.ErrSourceNotFound.Error()}
		return res
	case !desc.Enabled:
		c.observe(id, "skipped", 0, 0, 0)
		res.Sources[id] = aggregation.SourceResult{Error: domain.ErrSourceDisabled.Error()}
		return res
	}

	var (
		sr      aggregation.SourceResult
		records []record.Raw
	)
	start := c.clock.Now()

	for i := 0; i < pages; i++ {
		page := q.Page + i
		if i > 0 {
			select {
			case <-ctx.Done():
				sr.Error = fmt.Sprintf("stopped before page %d: %v", page, ctx.Err())
			case <-c.clock.After(c.pageDelay):
			}
			if sr.Error != "" {
				break
			}
		}

		if err := c.admit(ctx, desc); err != nil {
			sr.Error = fmt.Sprintf("page %d: %v", page, err)
			break
		}

		callStart := c.clock.Now()
		batch, err := c.call(ctx, desc, fetcher, q.WithPage(page))
		elapsed := c.clock.Now().Sub(callStart)
		sr.Pages++
		sr.Cost += desc.CostPerCall

		if err != nil {
			c.observe(id, "error", elapsed, 0, desc.CostPerCall)
			sr.Error = fmt.Sprintf("page %d: %v", page, err)
			logger.FromContextOr(ctx, c.logger).Warn("Pagination stopped on error",
				logger.Source(id),
				zap.Int("page", page),
				zap.Int("kept", len(records)),
				zap.Error(err),
			)
			break
		}

		batch = normalize(id, batch)
		c.observe(id, "success", elapsed, len(batch), desc.CostPerCall)
		sr.Success = true
		if len(batch) == 0 {
			break
		}
		records = append(records, batch...)
	}

	sr.Count = len(records)
	sr.Duration = c.clock.Now().Sub(start)
	res.Records = records
	res.Sources[id] = sr
	res.TotalCost = sr.Cost
	return res
}
