package models

// QuotaRequest is the upstream quota query body.
type QuotaRequest struct {
	Modules []string `json:"modules"`
}

// QuotaResponse is the upstream quota query response.
type QuotaResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ModuleQuotas []ModuleQuota `json:"module_quotas"`
	} `json:"data"`
}

// ModuleQuota lists the quotas of one upstream module.
type ModuleQuota struct {
	Module string  `json:"module"`
	Quotas []Quota `json:"quotas"`
}

// Quota is one quota bucket of a module.
type Quota struct {
	Scene          string `json:"scene"`
	ResetFrequency string `json:"reset_frequency"`
	DefaultQuota   int    `json:"default_quota"`
	CurrentQuota   int    `json:"current_quota"`
	LastResetTime  string `json:"last_reset_time"`
}
