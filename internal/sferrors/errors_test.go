// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sferrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/sourcefast/internal/sferrors"
)

func TestExitCodeMapsKnownSentinels(t *testing.T) {
	require.Equal(t, sferrors.ExitSuccess, sferrors.ExitCode(nil))
	require.Equal(t, sferrors.ExitInterrupted, sferrors.ExitCode(sferrors.ErrCancelled))
	require.Equal(t, sferrors.ExitUserErr, sferrors.ExitCode(sferrors.ErrQueryTooShort))
	require.Equal(t, sferrors.ExitUserErr, sferrors.ExitCode(sferrors.ErrInvalidRegex))
	require.Equal(t, sferrors.ExitUserErr, sferrors.ExitCode(sferrors.ErrBusy))
	require.Equal(t, sferrors.ExitInternal, sferrors.ExitCode(sferrors.ErrCorrupt))
	require.Equal(t, sferrors.ExitInternal, sferrors.ExitCode(errors.New("unclassified")))
}

func TestExitCodeSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("compute plan: %w", sferrors.ErrBusy)
	require.True(t, errors.Is(wrapped, sferrors.ErrBusy))
	require.Equal(t, sferrors.ExitUserErr, sferrors.ExitCode(wrapped))
}

func TestNewIoErrorNilPassthrough(t *testing.T) {
	require.Nil(t, sferrors.NewIoError("a.go", nil))

	err := sferrors.NewIoError("a.go", errors.New("permission denied"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "a.go")
	require.Contains(t, err.Error(), "permission denied")

	var ioErr *sferrors.IoError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "a.go", ioErr.Path)
}
