package billingprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Client — HTTP-клиент query API биллинг-провайдера.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент провайдера.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// GetSubscriberState запрашивает каноническое состояние подписчика и приводит
// его к models.EntitlementState. Если активного entitlement нет, возвращает
// models.ErrNoSubscription.
func (c *Client) GetSubscriberState(ctx context.Context, subscriberRef string) (*models.EntitlementState, error) {
	const op = "billingprovider.GetSubscriberState"

	req, err := c.newRequest(ctx, http.MethodGet, "/subscribers/"+subscriberRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNoSubscription)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}

	var info SubscriberInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	state := stateFromSubscriber(&info.Subscriber, subscriberRef, time.Now())
	if state == nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNoSubscription)
	}
	return state, nil
}

// CancelSubscription просит провайдера отменить активную подписку подписчика.
func (c *Client) CancelSubscription(ctx context.Context, subscriberRef string) error {
	const op = "billingprovider.CancelSubscription"

	req, err := c.newRequest(ctx, http.MethodDelete, "/subscribers/"+subscriberRef+"/subscription")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, models.ErrNoSubscription)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	return nil
}

// stateFromSubscriber выбирает самый старший неистёкший entitlement.
// Порядок старшинства: team > professional > individual.
func stateFromSubscriber(sub *Subscriber, subscriberRef string, now time.Time) *models.EntitlementState {
	for _, plan := range []string{models.PlanTeam, models.PlanProfessional, models.PlanIndividual} {
		ent, ok := sub.Entitlements[plan]
		if !ok {
			continue
		}
		if ent.ExpiresDate != nil && !ent.ExpiresDate.After(now) {
			continue
		}

		p := plan
		platform := platformFromStore(ent.Store)
		period := ent.BillingPeriod
		if period != models.BillingMonthly && period != models.BillingYearly {
			period = models.BillingMonthly
		}
		return &models.EntitlementState{
			Tier:             models.TierPaid,
			Plan:             &p,
			BillingPeriod:    &period,
			CreditsRemaining: nil, // платный тариф — безлимит
			SubscriberRef:    subscriberRef,
			Platform:         platform,
			ExpiresAt:        ent.ExpiresDate,
		}
	}
	return nil
}

func platformFromStore(store string) *string {
	var platform string
	switch store {
	case "app_store":
		platform = "ios"
	case "play_store":
		platform = "android"
	case "stripe":
		platform = "web"
	default:
		return nil
	}
	return &platform
}
