package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// Bulletin is one raw storm-report product body.
type Bulletin struct {
	ID       string
	IssuedAt *time.Time
	Text     string
}

type productListResponse struct {
	Graph []struct {
		ID           string `json:"id"`
		AtID         string `json:"@id"`
		IssuanceTime string `json:"issuanceTime"`
	} `json:"@graph"`
}

type productResponse struct {
	ID           string `json:"id"`
	IssuanceTime string `json:"issuanceTime"`
	ProductText  string `json:"productText"`
}

// ReportHeader identifies one listed storm-report bulletin.
type ReportHeader struct {
	ID       string
	IssuedAt time.Time
}

// ListReportIDs lists storm-report bulletin ids issued within the lookback window.
func (c *Client) ListReportIDs(ctx context.Context) ([]ReportHeader, error) {
	body, err := c.getWithRetry(ctx, c.baseURL+"/products/types/LSR", "application/ld+json, application/json")
	if err != nil {
		return nil, fmt.Errorf("list report bulletins: %w", err)
	}

	var resp productListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode bulletin list: %w", err)
	}

	cutoff := domain.Now().Add(-c.lookback)
	var out []ReportHeader
	for _, p := range resp.Graph {
		issued := domain.ParseTimestamp(p.IssuanceTime)
		if issued == nil || issued.Before(cutoff) {
			continue
		}
		id := p.ID
		if id == "" && p.AtID != "" {
			parts := strings.Split(strings.TrimSuffix(p.AtID, "/"), "/")
			id = parts[len(parts)-1]
		}
		if id == "" {
			continue
		}
		out = append(out, ReportHeader{ID: id, IssuedAt: *issued})
	}
	return out, nil
}

// FetchReport fetches one bulletin body by id.
func (c *Client) FetchReport(ctx context.Context, id string) (*Bulletin, error) {
	body, err := c.get(ctx, c.baseURL+"/products/"+id, "application/ld+json, application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch bulletin %s: %w", id, err)
	}
	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode bulletin %s: %w", id, err)
	}
	b := &Bulletin{ID: resp.ID, IssuedAt: domain.ParseTimestamp(resp.IssuanceTime), Text: resp.ProductText}
	if b.ID == "" {
		b.ID = id
	}
	return b, nil
}

// FetchRecentReports lists bulletins in the lookback window and fetches their
// bodies with a bounded concurrency pool. Individual fetch failures are
// skipped and counted, never fatal; only the listing call can fail the whole
// operation.
func (c *Client) FetchRecentReports(ctx context.Context) ([]Bulletin, int, error) {
	headers, err := c.ListReportIDs(ctx)
	if err != nil {
		return nil, 0, err
	}

	sem := semaphore.NewWeighted(int64(c.fetchConcurrency))
	var (
		mu        sync.Mutex
		bulletins []Bulletin
		skipped   int
		wg        sync.WaitGroup
	)

	for _, h := range headers {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, skipped, err
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			b, err := c.FetchReport(ctx, h.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || strings.TrimSpace(b.Text) == "" {
				if err != nil {
					c.logger.Warn("bulletin fetch skipped", "bulletin_id", h.ID, "error", err)
				}
				skipped++
				return
			}
			if b.IssuedAt == nil {
				issued := h.IssuedAt
				b.IssuedAt = &issued
			}
			bulletins = append(bulletins, *b)
		}()
	}
	wg.Wait()

	return bulletins, skipped, nil
}
