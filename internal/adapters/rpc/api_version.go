package rpc

// Range of the optional api_version request member. Notifications carry
// their own version so stream readers can evolve separately.
const (
	apiVersionMin          = 1
	apiVersionCurrent      = 1
	notificationAPIVersion = 1
)

func checkAPIVersion(v *int) *rpcError {
	switch {
	case v == nil:
		return nil
	case *v < apiVersionMin:
		return &rpcError{Code: -32081, Message: "rpc api version is no longer supported"}
	case *v > apiVersionCurrent:
		return &rpcError{Code: -32080, Message: "rpc api version is not supported by this server"}
	}
	return nil
}

type apiVersionInfo struct {
	Current      int `json:"current_version"`
	MinSupported int `json:"min_supported_version"`
	Notification int `json:"notification_version"`
}

func currentAPIVersions() apiVersionInfo {
	return apiVersionInfo{
		Current:      apiVersionCurrent,
		MinSupported: apiVersionMin,
		Notification: notificationAPIVersion,
	}
}
