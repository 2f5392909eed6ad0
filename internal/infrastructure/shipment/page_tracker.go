package shipment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// PageTracker extracts shipment state from a courier's public HTML
// tracking page, for couriers that expose no API. No authentication;
// Authenticate returns an empty token.
type PageTracker struct {
	// urlTemplate receives the shipment id, e.g.
	// "https://courier.example/track/%s".
	urlTemplate string
	// selector points at the element whose text is the status label.
	selector string
	client   *http.Client
}

var _ ports.ShipmentTracker = (*PageTracker)(nil)

// NewPageTracker wires the page location and status selector.
func NewPageTracker(urlTemplate, selector string, client *http.Client) *PageTracker {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PageTracker{urlTemplate: urlTemplate, selector: selector, client: client}
}

func (p *PageTracker) Authenticate(_ context.Context) (string, error) {
	return "", nil
}

// Status fetches and parses the tracking page for one shipment.
func (p *PageTracker) Status(ctx context.Context, shipmentID, _ string) (domain.ShipmentStatus, error) {
	pageURL := fmt.Sprintf(p.urlTemplate, shipmentID)

	doc, err := p.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.ShipmentStatus{}, fmt.Errorf("shipment %s: %w", shipmentID, err)
	}

	label := strings.TrimSpace(doc.Find(p.selector).First().Text())
	if label == "" {
		return domain.ShipmentStatus{}, fmt.Errorf("shipment %s: no status element matched %q", shipmentID, p.selector)
	}

	return domain.ShipmentStatus{Label: label}, nil
}

func (p *PageTracker) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "reconagent/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request tracking page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracking page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse tracking page: %w", err)
	}
	return doc, nil
}
