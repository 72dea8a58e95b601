package service

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/repository"
)

// Provisioner materializes the extended-user graph. Both sign-up paths and
// the self-healing profile read go through it, and every step is idempotent.
type Provisioner struct {
	Profiles *repository.ProfileRepo
	Log      zerolog.Logger
}

// ProvisionTx creates the one-to-one dependents inside the caller's
// transaction, so a failure rolls back the new user as well.
func (p *Provisioner) ProvisionTx(ctx context.Context, tx *sql.Tx, userID uint64, phone string) error {
	return p.Profiles.EnsureDependentsTx(ctx, tx, userID, phone)
}

// SeedAchievements creates the locked starter achievements. Failures are
// logged and swallowed.
func (p *Provisioner) SeedAchievements(ctx context.Context, userID uint64) {
	if err := p.Profiles.SeedAchievements(ctx, userID); err != nil {
		p.Log.Warn().Err(err).Uint64("user_id", userID).Msg("seed achievements failed")
	}
}

// Ensure repairs a user whose dependents are missing. It returns true when
// anything had to be created.
func (p *Provisioner) Ensure(ctx context.Context, userID uint64, phone string) (bool, error) {
	ok, err := p.Profiles.HasDependents(ctx, userID)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := p.Profiles.Provision(ctx, userID, phone); err != nil {
		return false, err
	}
	p.SeedAchievements(ctx, userID)
	return true, nil
}
