package errcode

// 发布通知中的错误码：
// - 0：成功
// - 4xxx：页面已发布，但附带产物有问题
// - 5xxx：发布失败，任务已放弃重试
const (
	OK                 = 0
	PreviewUnavailable = 4010

	SystemError         = 5000
	DocumentUnavailable = 5001
	RenderFailed        = 5002
	StorageUnavailable  = 5003
)
