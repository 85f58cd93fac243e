package models

const SuccessCode = 0

type ListJobsResp struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg,omitempty"`
	Jobs  []Job  `json:"jobs"`
	Total int64  `json:"total"`
}

type OutputReq struct {
	ID int64 `json:"id"`
}

type OutputResp struct {
	Code     int    `json:"code"`
	Msg      string `json:"msg,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type AttestationResp struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg,omitempty"`
	Token string `json:"token,omitempty"`
}

// SubmitJobReq names the notebook to run. Path is where the notebook lives
// inside the workspace.
type SubmitJobReq struct {
	Filename string `json:"filename" binding:"required"`
	Path     string `json:"path" binding:"required"`
}

type SubmitJobResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
}
