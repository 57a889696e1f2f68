package weather

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/tool"
)

// ToolName is the name participants call the weather tool by.
const ToolName = "get_weather"

// NotConfiguredText is the reply when no API key is configured.
const NotConfiguredText = "Weather lookups are not configured; no OpenWeather API key is set."

type weatherArgs struct {
	City string `json:"city" description:"City to look up, in English or the user's language"`
	Days int    `json:"days,omitempty" description:"0 for today's conditions, otherwise the number of forecast days" minimum:"0" maximum:"7"`
}

// NewTool exposes forecaster as the get_weather tool. Lookup failures are
// reported as text. A nil forecaster yields NotConfiguredText.
func NewTool(forecaster Forecaster, logger logging.Logger) tool.Tool {
	log := logging.OrNoOp(logger)
	return tool.NewFunctionToolFromStruct(
		ToolName,
		"Get today's weather or a daily forecast of up to 7 days for a city.",
		weatherArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			city := tool.StringArg(args, "city")
			days := tool.IntArg(args, "days", 0)
			if forecaster == nil {
				log.Warn("weather.lookup.unconfigured", "city", city)
				return NotConfiguredText, nil
			}

			f, err := forecaster.Forecast(ctx, city)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.Is(err, ErrCityNotFound):
				return fmt.Sprintf("No coordinates found for %q; the weather could not be looked up.", city), nil
			default:
				log.Warn("weather.lookup.failed", "city", city, "error", err)
				return fmt.Sprintf("The weather for %q could not be looked up: %v", city, err), nil
			}

			log.Info("weather.lookup.done", "city", city, "days", days)
			return Format(f, days), nil
		},
	)
}
