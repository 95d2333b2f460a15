package postgres

import (
	"github.com/viralforge/identity-core/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Users       ports.UserRepository
	Credentials ports.CredentialRepository
	Recovery    ports.RecoveryRepository
	Federation  ports.FederationRepository
	MFA         ports.MFARepository
	Sessions    ports.SessionRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:       &userRepository{db: db},
		Credentials: &credentialRepository{db: db},
		Recovery:    &recoveryRepository{db: db},
		Federation:  &federationRepository{db: db},
		MFA:         &mfaRepository{db: db},
		Sessions:    &sessionRepository{db: db},
	}
}
