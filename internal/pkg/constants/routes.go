package constants

// Static route constants
const (
	APIRoute = "/api"
	V1Route  = "/v1"

	CustomersRoute      = "/customers"
	ReplenishmentsRoute = "/replenishments"
	AdminRoute          = "/admin"
	StatisticsRoute     = "/statistics"
)
