package pacto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/gym-retention/platform/internal/shared/config"
	"github.com/gym-retention/platform/internal/shared/metrics"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Client reads members and check-ins from the Pacto gym-management API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	config     config.PactoConfig
}

// New creates a Pacto client. Requests are throttled to cfg.RequestsPerSecond.
func New(cfg config.PactoConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		config:     cfg,
	}
}

// Aluno is a member record as returned by the upstream API. Field names
// differ between API versions, so both spellings are accepted.
type Aluno struct {
	AlunoID        FlexString       `json:"alunoId"`
	ID             FlexString       `json:"id"`
	FichaID        FlexString       `json:"fichaId"`
	FichaIDSnake   FlexString       `json:"ficha_id"`
	Nome           string           `json:"nome"`
	Name           string           `json:"name"`
	Email          string           `json:"email"`
	Telefone       string           `json:"telefone"`
	Phone          string           `json:"phone"`
	DataMatricula  string           `json:"dataMatricula"`
	EnrollmentDate string           `json:"enrollment_date"`
	Plano          *Plano           `json:"plano"`
	PlanName       string           `json:"plan_name"`
	PlanValue      *decimal.Decimal `json:"plan_value"`
	Status         string           `json:"status"`
}

// Plano is the member's current plan
type Plano struct {
	Nome  string           `json:"nome"`
	Valor *decimal.Decimal `json:"valor"`
}

// Checkin is a class attendance record
type Checkin struct {
	AulaID     FlexString `json:"aulaId"`
	AulaIDAlt  FlexString `json:"aula_id"`
	Data       string     `json:"data"`
	Date       string     `json:"date"`
	Hora       string     `json:"hora"`
	Time       string     `json:"time"`
	Atividade  string     `json:"atividade"`
	Activity   string     `json:"activity"`
	Confirmado *bool      `json:"confirmado"`
}

// FlexString accepts JSON strings and numbers
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// Members lists the members registered under a gym account
func (c *Client) Members(ctx context.Context, matricula string) ([]Aluno, error) {
	q := url.Values{}
	q.Set("matricula", matricula)
	q.Set("limit", strconv.Itoa(c.config.PageLimit))

	var alunos []Aluno
	if err := c.get(ctx, "/alunos", q, &alunos); err != nil {
		return nil, fmt.Errorf("failed to fetch members: %w", err)
	}
	return alunos, nil
}

// Checkins lists a member's check-ins between from and to inclusive
func (c *Client) Checkins(ctx context.Context, fichaID string, from, to types.Date) ([]Checkin, error) {
	q := url.Values{}
	q.Set("fichaId", fichaID)
	q.Set("dataInicio", from.String())
	q.Set("dataFim", to.String())

	var checkins []Checkin
	if err := c.get(ctx, "/checkins", q, &checkins); err != nil {
		return nil, fmt.Errorf("failed to fetch checkins: %w", err)
	}
	return checkins, nil
}

// get fetches endpoint and decodes a list that may be wrapped in {"data": [...]}
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, dst any) error {
	body, err := c.doRequest(ctx, endpoint, c.baseURL+endpoint+"?"+q.Encode())
	if err != nil {
		return err
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(wrapped.Data) == 0 {
			return fmt.Errorf("unexpected response shape: object without data")
		}
		trimmed = wrapped.Data
	}

	if err := json.Unmarshal(trimmed, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs a GET with retry on transport errors and 5xx responses
func (c *Client) doRequest(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordUpstreamRequest(endpoint, 0, time.Since(start))
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		resp.Body.Close()
		metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, snippet(body))
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
