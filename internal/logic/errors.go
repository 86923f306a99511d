package logic

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransfer       = errors.New("无效的转账请求")
	ErrTransactionNotFound   = errors.New("交易不存在")
	ErrTransactionNotPending = errors.New("交易不是待打包状态")
	ErrNoAdminWallet         = errors.New("未配置管理员钱包")
	ErrPeriodNotEnded        = errors.New("奖励周期尚未结束")
)

// SubmissionErrorKind 提交失败类型
type SubmissionErrorKind string

const (
	SubmissionRejected  SubmissionErrorKind = "rejected"  // 链拒绝交易或签名失败
	SubmissionIntegrity SubmissionErrorKind = "integrity" // 持久化时发现哈希或 nonce 冲突
)

// SubmissionError 交易提交的永久失败，交易已置为失败
type SubmissionError struct {
	Kind SubmissionErrorKind
	Hash string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("交易提交失败(%s) %s: %v", e.Kind, e.Hash, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
