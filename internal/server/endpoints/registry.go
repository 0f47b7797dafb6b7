package endpoints

import (
	"github.com/jackzampolin/epubaudio/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Conversion endpoints
		&ExtractEndpoint{},
		&ConvertEndpoint{},
		&ProgressEndpoint{},
		&DownloadEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&CancelJobEndpoint{},

		// Voice endpoints
		&ListVoicesEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
	}
}
