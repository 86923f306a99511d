package handler

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// SendRewardsRequest 发放奖励请求
type SendRewardsRequest struct {
	Anchor     string `json:"anchor"` // 周期内任意日期，2006-01-02 或 RFC3339
	ActingUser string `json:"acting_user" binding:"required"`
}

// BoostRequest 加速交易请求
type BoostRequest struct {
	GasPrice string `json:"gas_price"` // wei，为空时按默认策略加价
}

// ReplaceHashRequest 奖励交易哈希替换请求
type ReplaceHashRequest struct {
	OldHash string `json:"old_hash" binding:"required"`
	NewHash string `json:"new_hash" binding:"required"`
}

// PeriodsInProgressResponse 发放中的周期
type PeriodsInProgressResponse struct {
	Sending bool        `json:"sending"`
	Periods interface{} `json:"periods"`
}
