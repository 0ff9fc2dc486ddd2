// Package syncer реализует протокол синхронизации клиента с сервером:
// выборку изменений с момента checkpoint, применение клиентских изменений
// через разрешение конфликтов last-write-wins и атомарную фиксацию результата.
//
// Набор синхронизируемых сущностей не зашит в код: каждый тип регистрируется
// в Registry вместе со своим адаптером хранилища и функцией слияния полей.
package syncer
