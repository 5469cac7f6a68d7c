// Package dns publishes project subdomains as Cloudflare DNS records.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"

	cf "github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/config"
	"github.com/RevCBH/shipyard/internal/lifecycle"
	"github.com/RevCBH/shipyard/internal/logging"
)

// recordTTL is Cloudflare's "automatic" TTL.
const recordTTL = 1

// RecordAPI is the subset of *cloudflare.API used here.
type RecordAPI interface {
	ListDNSRecords(ctx context.Context, rc *cf.ResourceContainer, params cf.ListDNSRecordsParams) ([]cf.DNSRecord, *cf.ResultInfo, error)
	CreateDNSRecord(ctx context.Context, rc *cf.ResourceContainer, params cf.CreateDNSRecordParams) (cf.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, rc *cf.ResourceContainer, recordID string) error
}

// Publisher points <project>.<domain> at the daemon's public address.
// Records are looked up by name on every call, so no local state is kept.
type Publisher struct {
	api     RecordAPI
	zone    *cf.ResourceContainer
	target  string
	proxied bool
	routing lifecycle.Routing
	logger  *zap.Logger
}

// New creates a Publisher on top of api.
func New(api RecordAPI, zoneID, target string, proxied bool, routing lifecycle.Routing, logger *zap.Logger) (*Publisher, error) {
	if routing.Mode != lifecycle.RoutingSubdomain || routing.Domain == "" {
		return nil, errors.New("dns: subdomain routing with a domain is required")
	}
	if zoneID == "" || target == "" {
		return nil, errors.New("dns: zone id and target are required")
	}
	return &Publisher{
		api:     api,
		zone:    cf.ZoneIdentifier(zoneID),
		target:  target,
		proxied: proxied,
		routing: routing,
		logger:  logging.OrNop(logger),
	}, nil
}

// NewCloudflare creates a Publisher authenticated with cfg's API token.
func NewCloudflare(cfg config.DNSConfig, routing lifecycle.Routing, logger *zap.Logger) (*Publisher, error) {
	api, err := cf.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare API client: %w", err)
	}
	return New(api, cfg.ZoneID, cfg.Target, cfg.Proxied, routing, logger)
}

// recordType is A for an IPv4 target, AAAA for IPv6 and CNAME otherwise.
func (p *Publisher) recordType() string {
	ip := net.ParseIP(p.target)
	switch {
	case ip == nil:
		return "CNAME"
	case ip.To4() != nil:
		return "A"
	default:
		return "AAAA"
	}
}

// Publish creates the project's record unless an identical one exists.
// A stale record for the same name is replaced.
func (p *Publisher) Publish(ctx context.Context, projectID string) error {
	name := p.routing.Hostname(projectID)
	typ := p.recordType()

	existing, _, err := p.api.ListDNSRecords(ctx, p.zone, cf.ListDNSRecordsParams{Name: name})
	if err != nil {
		return fmt.Errorf("list DNS records for %s: %w", name, err)
	}
	for _, r := range existing {
		if r.Type == typ && r.Content == p.target {
			return nil
		}
		if err := p.api.DeleteDNSRecord(ctx, p.zone, r.ID); err != nil {
			return fmt.Errorf("delete stale DNS record %s: %w", r.ID, err)
		}
	}

	proxied := p.proxied
	record, err := p.api.CreateDNSRecord(ctx, p.zone, cf.CreateDNSRecordParams{
		Type:    typ,
		Name:    name,
		Content: p.target,
		TTL:     recordTTL,
		Proxied: &proxied,
		Comment: "shipyard project " + projectID,
	})
	if err != nil {
		return fmt.Errorf("failed to create DNS record %s: %w", name, err)
	}

	p.logger.Info("published DNS record",
		zap.String("name", name),
		zap.String("type", typ),
		zap.String("record", record.ID))
	return nil
}

// Unpublish deletes every record for the project's hostname.
func (p *Publisher) Unpublish(ctx context.Context, projectID string) error {
	name := p.routing.Hostname(projectID)

	existing, _, err := p.api.ListDNSRecords(ctx, p.zone, cf.ListDNSRecordsParams{Name: name})
	if err != nil {
		return fmt.Errorf("list DNS records for %s: %w", name, err)
	}

	var errs []error
	for _, r := range existing {
		if err := p.api.DeleteDNSRecord(ctx, p.zone, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete DNS record %s: %w", r.ID, err))
		}
	}
	if len(existing) > 0 {
		p.logger.Info("removed DNS records", zap.String("name", name), zap.Int("count", len(existing)))
	}
	return errors.Join(errs...)
}

var _ lifecycle.Publisher = (*Publisher)(nil)
