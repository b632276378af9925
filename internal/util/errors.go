package util

import "errors"

var (
	ErrUserNotFound    = errors.New("المستخدم غير موجود")
	ErrEmailRegistered = errors.New("البريد الإلكتروني مسجل بالفعل")

	// Exam session state machine.
	ErrExamNotFound     = errors.New("الإختبار مش موجود")
	ErrWrongGrade       = errors.New("الإختبار دا مش لصفك الدراسي")
	ErrAlreadyAttempted = errors.New("انت بدأت أو سلمت الإختبار دا قبل كدا")
	ErrAttemptNotFound  = errors.New("Exam not started")
	ErrAlreadySubmitted = errors.New("الإختبار اتسلم فعلا")
	ErrSubmitConflict   = errors.New("تعارض في الإرسال أو تم الإرسال بالفعل")
	ErrNotSubmittedYet  = errors.New("لم يتم تسليم الامتحان بعد")

	// AI pipeline.
	ErrMissingAPIKey   = errors.New("ai: no API key configured")
	ErrAllModelsFailed = errors.New("ai: all models and retries exhausted")

	// Chat.
	ErrConversationNotFound = errors.New("Conversation not found")
	ErrDailyChatLimit       = errors.New("وصلت للحد اليومي. ارجع بكرة!")

	// Uploads.
	ErrUnsupportedFileType = errors.New("نوع الملف غير مدعوم")
	ErrFileTooLarge        = errors.New("حجم الملف كبير جدا")
	ErrNotEducational      = errors.New("الملف لا يحتوي على محتوى تعليمي")
)
