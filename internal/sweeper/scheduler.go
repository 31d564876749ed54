package sweeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/robfig/cron/v3"
)

// Trigger starts one sweep, in process or on a remote booking service.
type Trigger interface {
	Trigger(ctx context.Context) (*models.SweepResponse, error)
}

// Trigger lets the in-process sweeper be scheduled directly.
func (s *Sweeper) Trigger(ctx context.Context) (*models.SweepResponse, error) {
	return s.Sweep(ctx)
}

// HTTPTrigger invokes the sweep endpoint of a booking service with the
// shared sweeper secret.
type HTTPTrigger struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

func NewHTTPTrigger(serviceURL, secret string, httpClient *http.Client) *HTTPTrigger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTrigger{
		URL:    strings.TrimRight(serviceURL, "/") + "/internal/sweep",
		Secret: secret,
		HTTP:   httpClient,
	}
}

func (t *HTTPTrigger) Trigger(ctx context.Context) (*models.SweepResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(nil))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.Secret)

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sweep request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, models.ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("sweep returned status %d", resp.StatusCode)
	}

	var result models.SweepResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode sweep response: %w", err)
	}
	return &result, nil
}

// Scheduler fires a Trigger on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	timeout time.Duration
	log     *logger.Logger
}

func NewScheduler(trigger Trigger, timeout time.Duration, log *logger.Logger) *Scheduler {
	c := cron.New(
		cron.WithLocation(time.UTC),
		// a slow tick is skipped rather than stacked
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, trigger: trigger, timeout: timeout, log: log}
}

// Register adds the sweep job under spec ("@every 1m", "*/5 * * * *", ...).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", spec, err)
	}
	s.log.Info("SCHEDULER", fmt.Sprintf("Sweep registered with schedule %s", spec))
	return nil
}

// RunOnce performs a single sweep and logs its outcome. Panics are recovered
// so one bad tick cannot stop the scheduler.
func (s *Scheduler) RunOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("SCHEDULER", fmt.Sprintf("Sweep panicked: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.trigger.Trigger(ctx)
	if err != nil {
		s.log.Error("SCHEDULER", fmt.Sprintf("Sweep failed after %s: %v", time.Since(start), err))
		return
	}
	s.log.LogSweep("COMPLETED", fmt.Sprintf("expired=%d completed=%d refunded=%d in %s", result.ExpiredCount, result.CompletedCount, result.RefundedCount, time.Since(start)))
}

func (s *Scheduler) Start() {
	s.log.Info("SCHEDULER", "Starting cron scheduler...")
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.log.Info("SCHEDULER", "Stopping cron scheduler...")
	<-s.cron.Stop().Done()
	s.log.Info("SCHEDULER", "Cron scheduler stopped")
}
