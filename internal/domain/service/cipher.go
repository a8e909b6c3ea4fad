package service

// CredentialCipher Provider 凭证加解密端口。
// 静态加密的具体实现由外部注入，引擎只消费该契约。
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
