package cli

import (
	"errors"
	"sort"

	"github.com/vladislavdragonenkov/orderdesk/internal/client"
)

func asAPIError(err error) (*client.APIError, bool) {
	var apiErr *client.APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func asFormError(err error) (*client.FormError, bool) {
	var formErr *client.FormError
	ok := errors.As(err, &formErr)
	return formErr, ok
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
