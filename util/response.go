package util

// BasicResponse is the {code, msg} envelope shared by every manatee endpoint.
// A zero code means success.
type BasicResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func CreateErrorResponse(code int, errMsg ...string) BasicResponse {
	var msg string
	if len(errMsg) == 0 {
		msg = codeMsg[code]
	} else {
		msg = errMsg[0]
	}
	return BasicResponse{
		Code: code,
		Msg:  msg,
	}
}

const (
	SuccessCode = 0
	JsonError   = 400

	ParamError       = 4001
	UpstreamError    = 5001
	OutputWriteError = 5002
	WorkspaceError   = 5003
)

var codeMsg = map[int]string{
	SuccessCode: "Success",
	JsonError:   "An error occurred while converting to json",

	ParamError:       "Invalid request parameters",
	UpstreamError:    "An error occurred while calling the data clean room",
	OutputWriteError: "An error occurred while saving the job output",
	WorkspaceError:   "An error occurred while packing the workspace",
}
