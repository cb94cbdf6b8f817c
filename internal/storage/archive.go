package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"portfolio-advisor/internal/domain"
)

const archiveURLExpiry = 15 * time.Minute

// ArchiveEntry describes one archived portfolio history snapshot.
type ArchiveEntry struct {
	Key          string
	Size         int64
	LastModified *time.Time
	URL          string
}

// Archive snapshots a user's portfolio history before it is deleted.
type Archive struct {
	store  Service
	bucket string
	prefix string
	now    func() time.Time
}

func NewArchive(store Service, bucket, keyPrefix string) *Archive {
	return &Archive{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(keyPrefix, "/"),
		now:    time.Now,
	}
}

type archivedPortfolio struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	PortfolioJSON json.RawMessage `json:"portfolioJSON"`
	RiskProfile   string          `json:"riskProfile"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type archiveDocument struct {
	UserID     int64               `json:"userId"`
	ArchivedAt time.Time           `json:"archivedAt"`
	Portfolios []archivedPortfolio `json:"portfolios"`
}

// Save uploads the history as a single JSON document and returns its location.
func (a *Archive) Save(ctx context.Context, userID int64, history []domain.Portfolio) (string, error) {
	now := a.now().UTC()
	doc := archiveDocument{
		UserID:     userID,
		ArchivedAt: now,
		Portfolios: make([]archivedPortfolio, len(history)),
	}
	for i, p := range history {
		doc.Portfolios[i] = archivedPortfolio{
			ID:            p.ID,
			UserID:        p.UserID,
			PortfolioJSON: p.PortfolioJSON,
			RiskProfile:   p.RiskProfile,
			CreatedAt:     p.CreatedAt,
			UpdatedAt:     p.UpdatedAt,
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}

	key := path.Join(a.userPrefix(userID), fmt.Sprintf("%s-%s.json", now.Format("20060102T150405Z"), uuid.NewString()))
	return a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), "application/json")
}

// List returns the user's archives, newest first, each with a short-lived download URL.
func (a *Archive) List(ctx context.Context, userID int64) ([]ArchiveEntry, error) {
	objects, err := a.store.ListObjects(ctx, a.bucket, a.userPrefix(userID)+"/")
	if err != nil {
		return nil, err
	}

	entries := make([]ArchiveEntry, 0, len(objects))
	for _, obj := range objects {
		url, err := a.store.GetObjectURL(ctx, a.bucket, obj.Key, archiveURLExpiry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ArchiveEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			URL:          url,
		})
	}
	// keys start with a sortable timestamp
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key > entries[j].Key })
	return entries, nil
}

func (a *Archive) userPrefix(userID int64) string {
	return path.Join(a.prefix, fmt.Sprintf("user-%d", userID))
}
