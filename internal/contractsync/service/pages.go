package service

import (
	"context"
	"iter"

	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
)

// Pages walks the remote contract listing from the first page. Iteration stops after the
// last page, on the first error (yielded once), or when the consumer breaks.
func Pages(ctx context.Context, gateway contractdomain.Gateway, pageSize int) iter.Seq2[contractdomain.ContractPage, error] {
	return func(yield func(contractdomain.ContractPage, error) bool) {
		cursor := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(contractdomain.ContractPage{}, err)
				return
			}

			page, err := gateway.FetchContractsPage(ctx, pageSize, cursor)
			if err != nil {
				yield(contractdomain.ContractPage{}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if !page.HasMore || len(page.Contracts) == 0 {
				return
			}
			cursor = page.NextPageToken
			if cursor == "" {
				cursor = page.Contracts[len(page.Contracts)-1].ID
			}
		}
	}
}
