package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestTranslateKnownKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   Kind
	}{
		{Unauthorized("未登录"), http.StatusUnauthorized, KindUnauthorized},
		{Forbidden("没有权限"), http.StatusForbidden, KindForbidden},
		{NotFound("对象不存在"), http.StatusNotFound, KindNotFound},
		{InvalidID(), http.StatusBadRequest, KindInvalidID},
		{InvalidInput(FieldError{Path: "email", Message: "格式不对"}), http.StatusBadRequest, KindInvalidInput},
		{EmailNotConfigured(), http.StatusBadRequest, KindEmailNotConfigured},
		{NotEnabled("功能未启用"), http.StatusBadRequest, KindNotEnabled},
		{InvalidLicense("许可证已过期"), http.StatusForbidden, KindInvalidLicense},
	}
	for _, tc := range cases {
		status, env := Translate(tc.err)
		if status != tc.status {
			t.Errorf("%s: 状态码应为 %d，得到 %d", tc.code, tc.status, status)
		}
		if env.Code != tc.code {
			t.Errorf("code 应为 %s，得到 %s", tc.code, env.Code)
		}
		if env.Success {
			t.Errorf("%s: 失败响应 success 必须为 false", tc.code)
		}
	}
}

func TestTranslateWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("删除线程失败: %w", NotFound("线程不存在"))
	status, env := Translate(wrapped)
	if status != http.StatusNotFound || env.Code != KindNotFound {
		t.Fatalf("包装后的归类错误应保持映射: %d %+v", status, env)
	}
	if env.Message != "线程不存在" {
		t.Fatalf("消息应取自归类错误本体，得到 %q", env.Message)
	}
}

func TestTranslateUnclassified(t *testing.T) {
	status, env := Translate(errors.New("磁盘写入失败"))
	if status != http.StatusInternalServerError {
		t.Fatalf("未归类错误应映射到 500，得到 %d", status)
	}
	if env.Code != "" {
		t.Fatalf("未归类错误不应携带 code，得到 %q", env.Code)
	}
	if env.Message != "磁盘写入失败" {
		t.Fatalf("消息应透传，得到 %q", env.Message)
	}
}

func TestValidatorCollectsAll(t *testing.T) {
	var v Validator
	if v.Err() != nil {
		t.Fatal("零值校验器不应产生错误")
	}
	v.Fail("email", "邮箱格式不正确")
	v.Fail("password", "长度至少 8 位")

	err := v.Err()
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindInvalidInput {
		t.Fatalf("应生成 INVALID_INPUT，得到 %v", err)
	}
	if len(ae.Fields) != 2 {
		t.Fatalf("应包含全部 2 个字段，得到 %d", len(ae.Fields))
	}
	if ae.Fields[0].Path != "email" || ae.Fields[1].Path != "password" {
		t.Fatalf("字段顺序应与加入顺序一致: %+v", ae.Fields)
	}
}
