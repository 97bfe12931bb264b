package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/filter"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

const defaultPageSize = 50

// RegisterFunction validates and persists a new function at version 1.
func (r *Registry) RegisterFunction(ctx context.Context, req types.RegisterFunctionRequest) (types.FunctionMetadata, error) {
	code, err := r.resolveCode(ctx, req.Code, req.CodeURI)
	if err != nil {
		return types.FunctionMetadata{}, err
	}

	now := time.Now().UTC()
	fn := types.FunctionMetadata{
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Trigger:     req.Trigger,
		Resources:   types.DefaultResourceLimits(),
		Code:        code,
	}
	if req.Permissions != nil {
		fn.Permissions = *req.Permissions
	}
	if req.Resources != nil {
		fn.Resources = *req.Resources
	}

	if err := validateFunction(fn); err != nil {
		return types.FunctionMetadata{}, err
	}

	r.fnMu.Lock()
	defer r.fnMu.Unlock()

	id, err := r.store.NextFunctionID(ctx)
	if err != nil {
		return types.FunctionMetadata{}, fmt.Errorf("failed to assign function id: %w", err)
	}
	fn.ID = id

	if err := r.store.PutFunction(ctx, fn); err != nil {
		return types.FunctionMetadata{}, fmt.Errorf("failed to store function %d: %w", id, err)
	}
	if err := r.store.PutFunctionVersion(ctx, types.FunctionCode{FID: id, Version: fn.Version, Code: fn.Code}); err != nil {
		return types.FunctionMetadata{}, fmt.Errorf("failed to store function %d code: %w", id, err)
	}

	r.logger.Infof("[RegisterFunction] registered function %d (%s) version %d", fn.ID, fn.Name, fn.Version)
	return fn, nil
}

// UpdateFunction applies partial fields under optimistic concurrency: a
// non-zero ExpectedVersion that does not match the stored version is
// rejected with ErrVersionConflict. Every successful update bumps the
// version and keeps prior code versions.
func (r *Registry) UpdateFunction(ctx context.Context, id uint64, req types.UpdateFunctionRequest) (types.FunctionMetadata, error) {
	r.fnMu.Lock()
	defer r.fnMu.Unlock()

	fn, err := r.store.GetFunction(ctx, id)
	if err != nil {
		return types.FunctionMetadata{}, err
	}

	if req.ExpectedVersion != 0 && req.ExpectedVersion != fn.Version {
		return types.FunctionMetadata{}, fmt.Errorf(
			"function %d at version %d, expected %d: %w",
			id, fn.Version, req.ExpectedVersion, faaserrors.ErrVersionConflict,
		)
	}

	if req.Name != nil {
		fn.Name = *req.Name
	}
	if req.Description != nil {
		fn.Description = *req.Description
	}
	if req.Trigger != nil {
		fn.Trigger = *req.Trigger
	}
	if req.Permissions != nil {
		fn.Permissions = *req.Permissions
	}
	if req.Resources != nil {
		fn.Resources = *req.Resources
	}
	if req.Code != nil || req.CodeURI != nil {
		var inline, uri string
		if req.Code != nil {
			inline = *req.Code
		}
		if req.CodeURI != nil {
			uri = *req.CodeURI
		}
		code, err := r.resolveCode(ctx, inline, uri)
		if err != nil {
			return types.FunctionMetadata{}, err
		}
		fn.Code = code
	}

	fn.Version++
	fn.UpdatedAt = time.Now().UTC()

	if err := validateFunction(fn); err != nil {
		return types.FunctionMetadata{}, err
	}

	if err := r.store.PutFunction(ctx, fn); err != nil {
		return types.FunctionMetadata{}, fmt.Errorf("failed to store function %d: %w", id, err)
	}
	if err := r.store.PutFunctionVersion(ctx, types.FunctionCode{FID: id, Version: fn.Version, Code: fn.Code}); err != nil {
		return types.FunctionMetadata{}, fmt.Errorf("failed to store function %d code: %w", id, err)
	}

	r.logger.Infof("[UpdateFunction] function %d bumped to version %d", id, fn.Version)
	return fn, nil
}

func (r *Registry) GetFunction(ctx context.Context, id uint64) (types.FunctionMetadata, error) {
	return r.store.GetFunction(ctx, id)
}

func (r *Registry) DeleteFunction(ctx context.Context, id uint64) error {
	r.fnMu.Lock()
	defer r.fnMu.Unlock()
	if err := r.store.DeleteFunction(ctx, id); err != nil {
		return err
	}
	r.logger.Infof("[DeleteFunction] deleted function %d", id)
	return nil
}

// GetFunctionCode serves the AcquireFunc side of the protocol. Version 0
// means the current version.
func (r *Registry) GetFunctionCode(ctx context.Context, id, version uint64) (types.FunctionCode, error) {
	if version == 0 {
		fn, err := r.store.GetFunction(ctx, id)
		if err != nil {
			return types.FunctionCode{}, err
		}
		version = fn.Version
	}
	return r.store.GetFunctionVersion(ctx, id, version)
}

// AllFunctions returns every registered function ordered by id. Used on the
// matching path, which needs the full set.
func (r *Registry) AllFunctions(ctx context.Context) ([]types.FunctionMetadata, error) {
	return r.store.ListFunctions(ctx)
}

// ListFunctions pages through registered functions ordered by id. The page
// token is opaque to callers.
func (r *Registry) ListFunctions(ctx context.Context, req types.ListFunctionsRequest) (types.ListFunctionsResponse, error) {
	all, err := r.store.ListFunctions(ctx)
	if err != nil {
		return types.ListFunctionsResponse{}, err
	}

	afterID, err := decodePageToken(req.PageToken)
	if err != nil {
		return types.ListFunctionsResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var page []types.FunctionMetadata
	var nextToken string
	for _, fn := range all {
		if fn.ID <= afterID {
			continue
		}
		if req.TriggerType != "" && fn.Trigger.Type != req.TriggerType {
			continue
		}
		if req.NamePrefix != "" && !strings.HasPrefix(fn.Name, req.NamePrefix) {
			continue
		}
		if len(page) == pageSize {
			nextToken = encodePageToken(page[len(page)-1].ID)
			break
		}
		page = append(page, fn)
	}

	return types.ListFunctionsResponse{Functions: page, NextPageToken: nextToken}, nil
}

func encodePageToken(lastID uint64) string {
	return base64.URLEncoding.EncodeToString([]byte("v1:" + strconv.FormatUint(lastID, 10)))
}

func decodePageToken(token string) (uint64, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0, faaserrors.Invalid("bad page token")
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] != "v1" {
		return 0, faaserrors.Invalid("bad page token")
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, faaserrors.Invalid("bad page token")
	}
	return id, nil
}

func (r *Registry) resolveCode(ctx context.Context, inline, uri string) (string, error) {
	switch {
	case inline != "" && uri != "":
		return "", faaserrors.Invalid("code and code_uri are mutually exclusive")
	case inline != "":
		return inline, nil
	case uri != "":
		if r.fetcher == nil {
			return "", faaserrors.Invalid("code_uri not supported: no code fetcher configured")
		}
		code, err := r.fetcher.Fetch(ctx, uri)
		if err != nil {
			return "", fmt.Errorf("failed to fetch code from %s: %w", uri, err)
		}
		return code, nil
	default:
		return "", faaserrors.Invalid("function code is required")
	}
}

// validateFunction checks the metadata schema, including that any declared
// filters compile.
func validateFunction(fn types.FunctionMetadata) error {
	if err := fn.Validate(); err != nil {
		return err
	}
	for _, sub := range fn.Trigger.SubTriggers() {
		if sub.Type == types.TriggerTypeBlockchain && len(sub.Blockchain.Filter) > 0 {
			if _, err := filter.Parse(sub.Blockchain.Filter); err != nil {
				return err
			}
		}
	}
	return nil
}
