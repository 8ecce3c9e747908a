// Package session implements the network session multiplexer at the
// heart of a Wi-Fi Display (Miracast) stack: a single-threaded,
// readiness-driven I/O engine managing RTSP control connections, UDP
// media channels and TCP-framed data channels, plus a control API
// callable from any goroutine.
//
// Пакет реализует движок сессий по образцу голосового стека
// (pkg/rtp, pkg/sip/transport): один выделенный поток
// (горутина) ввода-вывода обслуживает readiness-мультиплексор поверх
// динамического набора сессий, а мутации набора приходят от внешних
// горутин через управляющий API, защищённый мьютексом, и будят цикл
// через self-pipe.
//
// Основные компоненты:
//   - Session: состояние одного сетевого эндпоинта
//   - Framer: RTSP/length-prefix/datagram фрейминг + RTP egress stamp
//   - socket factory: bind/listen/connect/setsockopt для режимов сессий
//   - Engine: readiness loop + control API
package session
