package services

import (
	"context"
	"fmt"
	"path"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/filex"
	"github.com/minmer/recreatio-sub002/internal/netx"
)

// Chains lists the ledger chains in verification order.
var Chains = []string{"auth", "key", "business"}

// Verify checks each chain, all of them when chains is empty. A non-empty
// roleID also checks that role's signatures.
func (s *SessionService) Verify(ctx context.Context, password []byte, chains []string, roleID string) ([]*api.LedgerSummary, error) {
	if _, err := s.Resume(ctx, password); err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		chains = Chains
	}

	out := make([]*api.LedgerSummary, 0, len(chains))
	for _, chain := range chains {
		sum, err := s.client.VerifyLedger(ctx, chain, roleID)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", chain, s.forget(ctx, err))
		}
		out = append(out, sum)
	}
	return out, nil
}

// ExportResult describes one archived chain. Path is empty when the server
// returned no download link.
type ExportResult struct {
	Key     string
	Entries int
	Path    string
}

// Export archives a chain on the server and downloads the archive into the
// exports directory under the data dir.
func (s *SessionService) Export(ctx context.Context, password []byte, chain string) (*ExportResult, error) {
	if _, err := s.Resume(ctx, password); err != nil {
		return nil, err
	}

	resp, err := s.client.ExportLedger(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", chain, s.forget(ctx, err))
	}
	res := &ExportResult{Key: resp.Key, Entries: resp.Entries}
	if resp.DownloadURL == "" {
		return res, nil
	}

	body, err := netx.DownloadFromPresignedURL(ctx, s.http, resp.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("download error: %w", err)
	}
	dir, err := filex.EnsureDir(s.dataDir, "exports")
	if err != nil {
		return nil, err
	}
	res.Path, err = filex.WriteFile(dir, chain+"-"+path.Base(resp.Key), body)
	if err != nil {
		return nil, err
	}
	return res, nil
}
