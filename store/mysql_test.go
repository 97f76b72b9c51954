package store

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateEntry(t *testing.T) {
	t.Parallel()

	dup := &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'U1:SIG1' for key 'idem_key'"}
	assert.True(t, isDuplicateEntry(dup))
	assert.True(t, isDuplicateEntry(fmt.Errorf("insert execution: %w", dup)),
		"wrapped driver errors still match")

	assert.False(t, isDuplicateEntry(&mysqldriver.MySQLError{Number: 1054, Message: "Unknown column"}))
	assert.False(t, isDuplicateEntry(errors.New("Duplicate entry 'U1:SIG1'")),
		"message text alone is not enough")
	assert.False(t, isDuplicateEntry(nil))
}
