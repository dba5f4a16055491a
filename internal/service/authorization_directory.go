package service

import (
	"context"
	"time"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
	"kidcheck/internal/repository"
)

// AuthorizationDirectory resolves who may collect a child at a given time
type AuthorizationDirectory struct {
	guardians  *repository.GuardianRepository
	authorized *repository.AuthorizedPickupRepository
	grants     *repository.PickupAuthorizationRepository
}

// NewAuthorizationDirectory creates a directory reading through q
func NewAuthorizationDirectory(q database.DBTX) *AuthorizationDirectory {
	return &AuthorizationDirectory{
		guardians:  repository.NewGuardianRepository(q),
		authorized: repository.NewAuthorizedPickupRepository(q),
		grants:     repository.NewPickupAuthorizationRepository(q),
	}
}

// WithTx returns a directory reading inside the transaction q
func (d *AuthorizationDirectory) WithTx(q database.DBTX) *AuthorizationDirectory {
	return &AuthorizationDirectory{
		guardians:  d.guardians.WithTx(q),
		authorized: d.authorized.WithTx(q),
		grants:     d.grants.WithTx(q),
	}
}

// ResolvePickupCandidates lists, in order, the guardians allowed to pick up
// the child, its active authorized pickups and its grants usable at `at`.
// The same person may appear under several provenances.
func (d *AuthorizationDirectory) ResolvePickupCandidates(ctx context.Context, childID int64, at time.Time) ([]models.Candidate, error) {
	var candidates []models.Candidate

	guardians, err := d.guardians.ListForChild(ctx, childID, true)
	if err != nil {
		return nil, err
	}
	for _, g := range guardians {
		if !g.Link.CanPickup {
			continue
		}
		candidates = append(candidates, models.Candidate{
			ID:           models.CandidateID("guardian", g.Guardian.ID),
			Name:         g.Guardian.Name,
			Relationship: g.Link.Relationship,
			RequiresPIN:  g.Guardian.HasPIN(),
			PINHash:      g.Guardian.PINHash,
			Source:       models.GuardianSource{GuardianID: g.Guardian.ID, IsPrimary: g.Link.IsPrimary},
		})
	}

	pickups, err := d.authorized.ListForChild(ctx, childID, true)
	if err != nil {
		return nil, err
	}
	for _, p := range pickups {
		candidates = append(candidates, models.Candidate{
			ID:           models.CandidateID("authorized", p.ID),
			Name:         p.Name,
			Relationship: p.Relationship,
			RequiresPIN:  true,
			PINHash:      p.PINHash,
			Source:       models.AuthorizedSource{AuthorizedPickupID: p.ID},
		})
	}

	grants, err := d.grants.ListForChild(ctx, childID, models.GrantApproved, models.GrantActive)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if !g.IsUsableAt(at) {
			continue
		}
		candidates = append(candidates, models.Candidate{
			ID:           models.CandidateID("temporary", g.ID),
			Name:         g.AuthorizedName,
			Relationship: g.Relationship,
			RequiresPIN:  true,
			PINHash:      g.PINHash,
			Source:       models.TemporarySource{GrantID: g.ID, Type: g.Type},
		})
	}

	return candidates, nil
}

// findCandidate returns the candidate with the given id
func findCandidate(candidates []models.Candidate, id string) (*models.Candidate, bool) {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i], true
		}
	}
	return nil, false
}
