package domain

import "errors"

// 领域错误。所有对外失败必须归入其中一类，调用方依据错误类型提示未满足的前置条件。
var (
	// ErrInvalidParameter 参数非法（零值、非正数、过期时间不在未来等）
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnauthorized 调用方不具备该操作的身份
	ErrUnauthorized = errors.New("unauthorized caller")
	// ErrInvalidState 协议当前状态不允许该操作
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyAssigned 持有人只能指派一次
	ErrAlreadyAssigned = errors.New("holder already assigned")
	// ErrNotYetExercisable 尚未到达行权窗口
	ErrNotYetExercisable = errors.New("not yet exercisable")
	// ErrExerciseWindowExpired 行权窗口已过
	ErrExerciseWindowExpired = errors.New("exercise window expired")
	// ErrTransferFailed 外部账本转账失败，整个操作回滚
	ErrTransferFailed = errors.New("ledger transfer failed")
	// ErrReentrantCall 转账回调重入同一协议的受保护操作
	ErrReentrantCall = errors.New("reentrant call")
	// ErrNotFound 协议或登记记录不存在
	ErrNotFound = errors.New("not found")
)
