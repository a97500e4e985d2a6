package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification summarises one pipeline run.
type Notification struct {
	RunID         string
	FinishedAt    time.Time
	Outcome       string
	Reasons       []string
	QualityScore  *float64
	ChecksFailed  []string
	FailedStages  []string
	Tickers       int
	ReturnRecords int
	ReportPath    string
	AdditionalMsg string
}

// Notifier defines the alert delivery contract.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with the rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("outcome", note.Outcome).
		Strs("reasons", note.Reasons).
		Msg("run summary sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	b := strings.Builder{}
	b.WriteString("[Market Recap]\n")
	b.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	b.WriteString(fmt.Sprintf("Finished: %s UTC\n", note.FinishedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Outcome: %s\n", note.Outcome))
	if len(note.Reasons) > 0 {
		b.WriteString(fmt.Sprintf("Reasons: %s\n", strings.Join(note.Reasons, "; ")))
	}
	if note.QualityScore != nil {
		b.WriteString(fmt.Sprintf("Quality score: %.1f%%\n", *note.QualityScore*100))
	}
	if len(note.ChecksFailed) > 0 {
		b.WriteString(fmt.Sprintf("Failed checks: %s\n", strings.Join(note.ChecksFailed, ", ")))
	}
	if len(note.FailedStages) > 0 {
		b.WriteString(fmt.Sprintf("Failed stages: %s\n", strings.Join(note.FailedStages, ", ")))
	}
	b.WriteString(fmt.Sprintf("Tickers: %d, returns: %d\n", note.Tickers, note.ReturnRecords))
	if note.ReportPath != "" {
		b.WriteString(fmt.Sprintf("Report: %s\n", note.ReportPath))
	}
	if note.AdditionalMsg != "" {
		b.WriteString(note.AdditionalMsg)
	}
	return b.String()
}

// Policy decides whether a finished run deserves a notification.
type Policy struct {
	MinQualityScore float64
	OnStageFailure  bool
	Always          bool
}

// Reasons lists why a run should be reported; empty means stay quiet.
// A missing score means the quality stage never completed.
func (p Policy) Reasons(outcome string, score *float64, failedStages []string) []string {
	reasons := make([]string, 0, 3)
	if outcome == "no_data" {
		reasons = append(reasons, "no price data")
	}
	if score != nil && *score < p.MinQualityScore {
		reasons = append(reasons, fmt.Sprintf("quality score %.1f%% below %.1f%%", *score*100, p.MinQualityScore*100))
	}
	if p.OnStageFailure && len(failedStages) > 0 {
		reasons = append(reasons, fmt.Sprintf("failed stages: %s", strings.Join(failedStages, ", ")))
	}
	if len(reasons) == 0 && p.Always {
		reasons = append(reasons, "scheduled summary")
	}
	return reasons
}

var _ Notifier = (*TelegramNotifier)(nil)
