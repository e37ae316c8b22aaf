package echoapi

import (
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonSerializer swaps echo's encoding/json serializer for json-iterator.
type jsonSerializer struct{}

var _ echo.JSONSerializer = (*jsonSerializer)(nil)

func (jsonSerializer) Serialize(ctx echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(ctx.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(ctx echo.Context, i interface{}) error {
	if err := json.NewDecoder(ctx.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Unmarshal error: %v", err)).SetInternal(err)
	}
	return nil
}
