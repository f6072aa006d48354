// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"tournament-registration/models"
	"tournament-registration/utils"
)

// RemoteProfile matches one user in the profile service's change feed.
type RemoteProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	KycStatus     string    `json:"kyc_status"`
	AccountStatus string    `json:"account_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileMirror is where synced profiles land.
type ProfileMirror interface {
	UpsertUserProfiles(ctx context.Context, profiles []models.UserProfile) error
	LatestProfileUpdate(ctx context.Context) (time.Time, error)
}

// ProfileSyncWorker keeps user_profiles (and with it the KYC status the registration
// flow reads) in step with the profile service.
type ProfileSyncWorker struct {
	store        ProfileMirror
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(store ProfileMirror, baseURL, endpointPath, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		store:        store,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Profile Sync Worker (profile-service → user_profiles)…")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial profile sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ Profile sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Profile Sync Worker stopped")
			return
		}
	}
}

// SyncOnce pulls changes since the newest local profile and upserts them.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.store.LatestProfileUpdate(ctx)
	if err != nil {
		return 0, fmt.Errorf("read sync watermark: %w", err)
	}
	if since.IsZero() {
		since = time.Unix(0, 0)
	}

	users, err := w.fetch(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		log.Printf("[SYNC] ✅ No profile changes since %s", since.UTC().Format(time.RFC3339))
		return 0, nil
	}

	profiles := make([]models.UserProfile, 0, len(users))
	for _, u := range users {
		if u.ExternalID == "" {
			continue
		}
		profiles = append(profiles, models.UserProfile{
			ExternalUserID: u.ExternalID,
			Username:       u.Username,
			Email:          u.Email,
			KycStatus:      models.NormalizeKycStatus(u.KycStatus),
			AccountStatus:  u.AccountStatus,
			CreatedAt:      u.CreatedAt,
			UpdatedAt:      u.UpdatedAt,
		})
	}
	if err := w.store.UpsertUserProfiles(ctx, profiles); err != nil {
		return 0, fmt.Errorf("upsert %d profile(s): %w", len(profiles), err)
	}
	log.Printf("[SYNC] 📥 Synced %d profile(s)", len(profiles))
	return len(profiles), nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile service: %v", models.ErrRemoteUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: profile service returned %d: %s", models.ErrRemoteUnavailable, resp.StatusCode, string(body))
	}

	var response profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return response.Users, nil
}
