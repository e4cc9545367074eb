package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ActivityStats aggregates recent Maestro activity from Prometheus.
// All counts cover the requested window.
type ActivityStats struct {
	WindowDays     int              `json:"window_days"`
	MessagesIn     int64            `json:"messages_in"`
	MessagesOut    int64            `json:"messages_out"`
	Heartbeats     map[string]int64 `json:"heartbeats"`
	Compactions    int64            `json:"compactions"`
	EngineSwitches int64            `json:"engine_switches"`
	Highlights     map[string]int64 `json:"highlights"`
}

// QueryService reads Maestro's own series back from a Prometheus server
// that scrapes /metrics. Optional: the dashboard works without it.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against a Prometheus base URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// Activity returns aggregated activity over the last windowDays days.
func (q *QueryService) Activity(ctx context.Context, windowDays int) (*ActivityStats, error) {
	if windowDays < 1 {
		windowDays = 1
	}
	window := fmt.Sprintf("%dd", windowDays)

	stats := &ActivityStats{
		WindowDays: windowDays,
		Heartbeats: map[string]int64{},
		Highlights: map[string]int64{},
	}

	var err error
	if stats.MessagesIn, err = q.scalar(ctx,
		fmt.Sprintf(`sum(increase(maestro_messages_total{direction="inbound"}[%s]))`, window)); err != nil {
		return nil, err
	}
	if stats.MessagesOut, err = q.scalar(ctx,
		fmt.Sprintf(`sum(increase(maestro_messages_total{direction="outbound"}[%s]))`, window)); err != nil {
		return nil, err
	}
	if stats.Compactions, err = q.scalar(ctx,
		fmt.Sprintf(`sum(increase(maestro_compactions_total[%s]))`, window)); err != nil {
		return nil, err
	}
	if stats.EngineSwitches, err = q.scalar(ctx,
		fmt.Sprintf(`sum(increase(maestro_engine_switches_total[%s]))`, window)); err != nil {
		return nil, err
	}

	if err := q.grouped(ctx,
		fmt.Sprintf(`sum by (mode) (increase(maestro_heartbeats_total[%s]))`, window),
		"mode", stats.Heartbeats); err != nil {
		return nil, err
	}
	if err := q.grouped(ctx,
		fmt.Sprintf(`sum by (outcome) (increase(maestro_highlights_total[%s]))`, window),
		"outcome", stats.Highlights); err != nil {
		return nil, err
	}

	return stats, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("prometheus query failed: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

func (q *QueryService) grouped(ctx context.Context, query, label string, out map[string]int64) error {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return fmt.Errorf("prometheus query failed: %w", err)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil
	}
	for _, sample := range vector {
		if name, ok := sample.Metric[model.LabelName(label)]; ok {
			out[string(name)] = int64(sample.Value)
		}
	}
	return nil
}
