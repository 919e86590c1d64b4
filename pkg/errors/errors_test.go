package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsKind(t *testing.T) {
	err := Clone(ErrBookUnavailable, "no copy of 978-1 left")

	assert.True(t, errors.Is(err, ErrBookUnavailable))
	assert.False(t, errors.Is(err, ErrStudentIneligible))
	assert.Equal(t, "no copy of 978-1 left", err.Error())
}

func TestWrappedKindSurvivesFmtWrap(t *testing.T) {
	inner := Persistence(sql.ErrConnDone, "failed to open loan")
	outer := fmt.Errorf("ledger: %w", inner)

	assert.True(t, errors.Is(outer, ErrPersistence))
	assert.True(t, errors.Is(outer, sql.ErrConnDone))
	assert.Equal(t, http.StatusInternalServerError, FromError(outer).Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
}
