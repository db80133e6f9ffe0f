package ledger

import (
	"fmt"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/failure"
)

// Open returns the ledger backend selected by cfg.
func Open(cfg configs.Ledger) (Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, failure.Configuration("ledger", err)
	}

	switch cfg.Driver {
	case configs.LedgerDriverFile:
		return NewFileStore(cfg.Dir)
	case configs.LedgerDriverSQLite:
		return NewSQLStore(cfg.DSN)
	default:
		return nil, failure.Configuration(fmt.Sprintf("unsupported ledger driver '%s'", cfg.Driver), nil)
	}
}
