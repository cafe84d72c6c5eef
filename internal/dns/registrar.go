// Package dns maintains one Cloudflare subdomain record per registered
// instance. The integration is optional; a disabled registrar is a no-op and
// DNS failures never invalidate the registered topology.
package dns

import (
	"context"
	"fmt"
	"log"
	"strings"

	cf "github.com/cloudflare/cloudflare-go"

	"burrow/internal/config"
)

// Registrar creates and deletes instance subdomain records.
type Registrar struct {
	api        *cf.API
	config     config.CloudflareConfig
	serverAddr string // The server's public IP or hostname
}

// NewRegistrar creates a registrar. With the integration disabled no API
// client is constructed and every call is a no-op.
func NewRegistrar(cfg config.CloudflareConfig, serverAddr string) (*Registrar, error) {
	if !cfg.Enabled {
		return &Registrar{config: cfg, serverAddr: serverAddr}, nil
	}

	api, err := cf.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare API client: %w", err)
	}

	return &Registrar{api: api, config: cfg, serverAddr: serverAddr}, nil
}

// Enabled reports whether DNS management is active.
func (r *Registrar) Enabled() bool {
	return r.config.Enabled && r.api != nil
}

// Domain returns the full domain an instance is served under.
func (r *Registrar) Domain(name string) string {
	return sanitizeForDNS(name) + "." + r.config.BaseDomain
}

// EnsureRecord creates an A record routing the instance's subdomain to this
// server and returns the record ID for later deletion.
func (r *Registrar) EnsureRecord(ctx context.Context, name string) (string, error) {
	if !r.Enabled() {
		return "", nil
	}

	subdomain := sanitizeForDNS(name)
	fullDomain := subdomain + "." + r.config.BaseDomain

	proxied := true
	recordParams := cf.CreateDNSRecordParams{
		Type:    "A",
		Name:    subdomain,
		Content: r.serverAddr,
		TTL:     120,
		Proxied: &proxied,
	}

	log.Printf("DNS: creating record for %s -> %s", fullDomain, r.serverAddr)

	record, err := r.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(r.config.ZoneID), recordParams)
	if err != nil {
		return "", fmt.Errorf("failed to create DNS record for %s: %w", fullDomain, err)
	}

	log.Printf("DNS: created record for %s (ID: %s)", fullDomain, record.ID)
	return record.ID, nil
}

// DeleteRecord removes the record created for an instance. An empty record ID
// (integration was off when the instance was added) is a no-op.
func (r *Registrar) DeleteRecord(ctx context.Context, recordID, name string) error {
	if !r.Enabled() || recordID == "" {
		return nil
	}

	if err := r.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(r.config.ZoneID), recordID); err != nil {
		return fmt.Errorf("failed to delete DNS record for %s: %w", name, err)
	}

	log.Printf("DNS: deleted record for %s (ID: %s)", name, recordID)
	return nil
}

// sanitizeForDNS removes characters that aren't valid in a DNS label and
// ensures it follows DNS naming conventions.
func sanitizeForDNS(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + 32 // Convert to lowercase
		}
		return '-'
	}, name)

	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}

	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		sanitized = "app"
	}

	return sanitized
}
