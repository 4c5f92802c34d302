package repository

import "gorm.io/gorm"

type CredentialRepo struct {
	DB *gorm.DB
}

type BlockRepo struct {
	DB *gorm.DB
}

type UserRepo struct {
	DB *gorm.DB
}

// WithTx rebinds the repo to an open transaction so several credential
// writes can share one atomic scope.
func (r *CredentialRepo) WithTx(tx *gorm.DB) *CredentialRepo {
	return &CredentialRepo{DB: tx}
}
