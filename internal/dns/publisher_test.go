package dns

import (
	"context"
	"fmt"
	"testing"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/shipyard/internal/lifecycle"
)

type fakeAPI struct {
	records []cf.DNSRecord
	next    int
	zones   []string
}

func (f *fakeAPI) ListDNSRecords(ctx context.Context, rc *cf.ResourceContainer, params cf.ListDNSRecordsParams) ([]cf.DNSRecord, *cf.ResultInfo, error) {
	f.zones = append(f.zones, rc.Identifier)
	var out []cf.DNSRecord
	for _, r := range f.records {
		if r.Name == params.Name {
			out = append(out, r)
		}
	}
	return out, &cf.ResultInfo{Count: len(out)}, nil
}

func (f *fakeAPI) CreateDNSRecord(ctx context.Context, rc *cf.ResourceContainer, params cf.CreateDNSRecordParams) (cf.DNSRecord, error) {
	f.next++
	r := cf.DNSRecord{
		ID:      fmt.Sprintf("rec-%d", f.next),
		Type:    params.Type,
		Name:    params.Name,
		Content: params.Content,
		Proxied: params.Proxied,
	}
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeAPI) DeleteDNSRecord(ctx context.Context, rc *cf.ResourceContainer, recordID string) error {
	for i, r := range f.records {
		if r.ID == recordID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("record %s not found", recordID)
}

var subdomain = lifecycle.Routing{Mode: lifecycle.RoutingSubdomain, Scheme: "https", Domain: "apps.example.com"}

func TestPublish_CreatesOnce(t *testing.T) {
	api := &fakeAPI{}
	p, err := New(api, "zone-1", "203.0.113.10", true, subdomain, nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "01ABC"))
	require.NoError(t, p.Publish(context.Background(), "01ABC"))

	require.Len(t, api.records, 1)
	r := api.records[0]
	assert.Equal(t, "01abc.apps.example.com", r.Name)
	assert.Equal(t, "A", r.Type)
	assert.Equal(t, "203.0.113.10", r.Content)
	assert.True(t, *r.Proxied)
	assert.Equal(t, "zone-1", api.zones[0])
}

func TestPublish_ReplacesStaleRecord(t *testing.T) {
	api := &fakeAPI{records: []cf.DNSRecord{{ID: "old", Type: "A", Name: "01abc.apps.example.com", Content: "198.51.100.1"}}}
	p, err := New(api, "zone-1", "edge.example.com", false, subdomain, nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "01ABC"))

	require.Len(t, api.records, 1)
	assert.Equal(t, "CNAME", api.records[0].Type)
	assert.Equal(t, "edge.example.com", api.records[0].Content)
}

func TestUnpublish(t *testing.T) {
	api := &fakeAPI{records: []cf.DNSRecord{
		{ID: "a", Type: "A", Name: "01abc.apps.example.com", Content: "203.0.113.10"},
		{ID: "b", Type: "A", Name: "other.apps.example.com", Content: "203.0.113.10"},
	}}
	p, err := New(api, "zone-1", "203.0.113.10", true, subdomain, nil)
	require.NoError(t, err)

	require.NoError(t, p.Unpublish(context.Background(), "01ABC"))
	require.Len(t, api.records, 1)
	assert.Equal(t, "b", api.records[0].ID)

	assert.NoError(t, p.Unpublish(context.Background(), "01ABC"), "nothing left to delete")
}

func TestRecordType(t *testing.T) {
	for target, want := range map[string]string{
		"203.0.113.10":     "A",
		"2001:db8::1":      "AAAA",
		"edge.example.com": "CNAME",
	} {
		p := &Publisher{target: target}
		assert.Equal(t, want, p.recordType(), target)
	}
}

func TestNew_RequiresSubdomainRouting(t *testing.T) {
	_, err := New(&fakeAPI{}, "zone", "1.2.3.4", true, lifecycle.Routing{Mode: lifecycle.RoutingHostPort}, nil)
	assert.Error(t, err)

	_, err = New(&fakeAPI{}, "", "1.2.3.4", true, subdomain, nil)
	assert.Error(t, err)
}
