// Package accounts implements the account access engine: account lifecycle
// operations and the permission and access-level queries gating every
// mutation and read.
package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// ErrAdminExists reports a second genesis attempt. Exactly one admin account
// is created at genesis; everything after that goes through AddAccount.
var ErrAdminExists = errors.New("admin account already exists")

// Access level granted to the genesis admin.
const adminAccessLevel = 1000

// Service answers permission queries and manages account records.
type Service struct {
	store storage.AccountStore
	log   *logger.Logger
}

// New constructs an account service.
func New(store storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// DefaultAdminPermissions returns the fixed genesis permission set.
func DefaultAdminPermissions() []string {
	return []string{
		account.PermChangeAccountPermissions,
		account.PermRegisterAccount,
		account.PermCreateEntity,
	}
}

// HasPermission reports whether the account holds the named permission.
func HasPermission(acct account.Account, permission string) bool {
	return acct.HasPermission(permission)
}

// EnsureHasPermission fails with a PermissionError when the account at
// address does not exist or lacks the permission. The two cases are
// deliberately indistinguishable to the caller.
func (s *Service) EnsureHasPermission(ctx context.Context, address, permission string) error {
	acct, err := s.store.GetAccount(ctx, address)
	if apperrors.IsNotFound(err) {
		return apperrors.NewPermissionError(permission)
	}
	if err != nil {
		return err
	}
	if !acct.HasPermission(permission) {
		return apperrors.NewPermissionError(permission)
	}
	return nil
}

// GetTokenCreatorAccessLevel resolves the access level of the token's
// creator. A nil token and an unregistered creator both resolve to 0.
func (s *Service) GetTokenCreatorAccessLevel(ctx context.Context, token *identity.Token) (int, error) {
	if token == nil {
		return 0, nil
	}
	acct, err := s.store.GetAccount(ctx, token.IDData.CreatedBy)
	if apperrors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.AccessLevel, nil
}

// CreateAdminAccount registers the genesis admin. It fails once any account
// exists.
func (s *Service) CreateAdminAccount(ctx context.Context, address string) (account.Account, error) {
	if address == "" {
		return account.Account{}, apperrors.RequiredError("address")
	}

	count, err := s.store.CountAccounts(ctx)
	if err != nil {
		return account.Account{}, err
	}
	if count > 0 {
		return account.Account{}, ErrAdminExists
	}

	admin := account.Account{
		Address:      address,
		Permissions:  DefaultAdminPermissions(),
		AccessLevel:  adminAccessLevel,
		RegisteredBy: address,
		RegisteredOn: time.Now().Unix(),
	}
	if err := s.store.StoreAccount(ctx, admin); err != nil {
		return account.Account{}, err
	}
	s.log.WithField("address", address).Info("admin account created")
	return admin, nil
}

// AddAccountRequest registers a new account. The field set is closed.
type AddAccountRequest struct {
	Address     string   `json:"address"`
	Permissions []string `json:"permissions"`
	AccessLevel int      `json:"accessLevel"`
}

// ModifyAccountRequest is a partial account update. Only permissions and
// accessLevel may be modified.
type ModifyAccountRequest struct {
	Permissions *[]string `json:"permissions,omitempty"`
	AccessLevel *int      `json:"accessLevel,omitempty"`
}

// ParseAddAccountRequest strictly decodes and validates a registration
// request document, rejecting unknown and missing fields.
func ParseAddAccountRequest(raw []byte) (AddAccountRequest, error) {
	var req AddAccountRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return AddAccountRequest{}, apperrors.NewValidationError("", err.Error())
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return AddAccountRequest{}, apperrors.NewValidationError("", "not a JSON object")
	}
	for _, field := range []string{"address", "permissions", "accessLevel"} {
		if _, ok := doc[field]; !ok {
			return AddAccountRequest{}, apperrors.RequiredError(field)
		}
	}

	if err := ValidateAddAccountRequest(req); err != nil {
		return AddAccountRequest{}, err
	}
	return req, nil
}

// ValidateAddAccountRequest checks field values of a registration request.
func ValidateAddAccountRequest(req AddAccountRequest) error {
	if req.Address == "" {
		return apperrors.RequiredError("address")
	}
	if req.Permissions == nil {
		return apperrors.RequiredError("permissions")
	}
	if req.AccessLevel < 0 {
		return apperrors.NewValidationError("accessLevel", "must be a non-negative integer")
	}
	return nil
}

// ParseModifyAccountRequest strictly decodes a modification request,
// rejecting any field outside permissions and accessLevel.
func ParseModifyAccountRequest(raw []byte) (ModifyAccountRequest, error) {
	var req ModifyAccountRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return ModifyAccountRequest{}, apperrors.NewValidationError("", err.Error())
	}
	if err := ValidateModifyAccountRequest(req); err != nil {
		return ModifyAccountRequest{}, err
	}
	return req, nil
}

// ValidateModifyAccountRequest checks field values of a modification request.
func ValidateModifyAccountRequest(req ModifyAccountRequest) error {
	if req.AccessLevel != nil && *req.AccessLevel < 0 {
		return apperrors.NewValidationError("accessLevel", "must be a non-negative integer")
	}
	return nil
}

// AddAccount registers a new account on behalf of the token's creator, who
// must hold register_account.
func (s *Service) AddAccount(ctx context.Context, req AddAccountRequest, token *identity.Token) (account.Account, error) {
	if token == nil {
		return account.Account{}, apperrors.NewPermissionError(account.PermRegisterAccount)
	}
	if err := s.EnsureHasPermission(ctx, token.IDData.CreatedBy, account.PermRegisterAccount); err != nil {
		return account.Account{}, err
	}
	if err := ValidateAddAccountRequest(req); err != nil {
		return account.Account{}, err
	}

	acct := account.Account{
		Address:      req.Address,
		Permissions:  append([]string(nil), req.Permissions...),
		AccessLevel:  req.AccessLevel,
		RegisteredBy: token.IDData.CreatedBy,
		RegisteredOn: time.Now().Unix(),
	}
	if err := s.store.StoreAccount(ctx, acct); err != nil {
		return account.Account{}, err
	}
	s.log.WithField("address", acct.Address).WithField("registered_by", acct.RegisteredBy).Info("account registered")
	return acct, nil
}

// GetAccount returns the account at address. The caller's own account must
// exist; an unregistered caller fails with a PermissionError regardless of
// the target.
func (s *Service) GetAccount(ctx context.Context, address string, token *identity.Token) (account.Account, error) {
	if token == nil {
		return account.Account{}, apperrors.NewPermissionError("")
	}
	if _, err := s.store.GetAccount(ctx, token.IDData.CreatedBy); err != nil {
		if apperrors.IsNotFound(err) {
			return account.Account{}, apperrors.NewPermissionError("")
		}
		return account.Account{}, err
	}
	return s.store.GetAccount(ctx, address)
}

// ModifyAccount applies a partial update to the target account on behalf of
// the token's creator, who must hold register_account.
func (s *Service) ModifyAccount(ctx context.Context, address string, req ModifyAccountRequest, token *identity.Token) (account.Account, error) {
	if token == nil {
		return account.Account{}, apperrors.NewPermissionError(account.PermRegisterAccount)
	}
	if err := s.EnsureHasPermission(ctx, token.IDData.CreatedBy, account.PermRegisterAccount); err != nil {
		return account.Account{}, err
	}
	if _, err := s.store.GetAccount(ctx, address); err != nil {
		return account.Account{}, err
	}
	if err := ValidateModifyAccountRequest(req); err != nil {
		return account.Account{}, err
	}

	updated, err := s.store.UpdateAccount(ctx, address, account.Update{
		Permissions: req.Permissions,
		AccessLevel: req.AccessLevel,
	})
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("address", address).Info("account modified")
	return updated, nil
}
