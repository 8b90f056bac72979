package api

import (
	"github.com/google/uuid"

	"github.com/auranet/aura-core/pkg/core/apperr"
)

func parseDealID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

func isDealNotFound(err error) bool {
	return apperr.KindOf(err) == apperr.KindDealNotFound
}
