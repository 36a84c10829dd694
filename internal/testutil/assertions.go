package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies an {"error": ...} response with expected
// status and message fragment
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body struct {
		Error string `json:"error"`
	}
	AssertJSONResponse(t, resp, &body)
	assert.Contains(t, body.Error, expectedMessage, "error message mismatch")
}

// AssertTokenIDs verifies cards carry exactly the given ids in order
func AssertTokenIDs(t *testing.T, cards []domain.MintedCard, expected ...uint64) {
	t.Helper()

	ids := make([]uint64, len(cards))
	for i, c := range cards {
		ids[i] = c.TokenID
	}
	if expected == nil {
		expected = []uint64{}
	}
	assert.Equal(t, expected, ids, "unexpected token ids")
}

// AssertRarities verifies cards carry exactly the given rarities in order
func AssertRarities(t *testing.T, cards []domain.MintedCard, expected ...domain.Rarity) {
	t.Helper()

	rarities := make([]domain.Rarity, len(cards))
	for i, c := range cards {
		rarities[i] = c.Rarity
	}
	if expected == nil {
		expected = []domain.Rarity{}
	}
	assert.Equal(t, expected, rarities, "unexpected rarities")
}
