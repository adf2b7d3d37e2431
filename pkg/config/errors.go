// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

var (
	ErrMissingCatalogHost    = errors.New("catalog host is required")
	ErrMissingWorkingRoot    = errors.New("working root is required")
	ErrInvalidReconnectMax   = errors.New("catalog reconnect max must be greater than 0")
	ErrInvalidResubmitMax    = errors.New("resubmit max must be greater than 0")
	ErrInvalidWorkerPoolSize = errors.New("worker pool size must be greater than 0")
	ErrInvalidSweepDelay     = errors.New("sweep delay must be greater than 0")
)
