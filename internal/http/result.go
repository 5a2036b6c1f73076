package httpapi

import (
	"encoding/json"
	"net/http"
)

// Result 响应信封：code 2000 成功 / -1 失败，type 为 "success" 或 "error"
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// listResult 列表类接口的 result 部分
type listResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func respond[T any](w http.ResponseWriter, result T) {
	encode(w, http.StatusOK, Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result})
}

// respondList nil 切片输出为 []
func respondList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	respond(w, listResult[T]{Items: items, Total: len(items)})
}

func respondError(w http.ResponseWriter, status int, message string) {
	encode(w, status, Result[any]{Code: ResultError, Type: "error", Message: message})
}

func encode(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
